package raft

import "sync"

// memoryLog is the default LogStore. The log lives in memory only.
type memoryLog struct {
	mu      sync.RWMutex
	entries []LogEntry
}

func newMemoryLog() *memoryLog {
	return &memoryLog{}
}

func (m *memoryLog) Append(entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryLog) Entries() ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LogEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}
