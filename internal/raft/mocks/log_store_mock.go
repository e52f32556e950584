package mocks

import (
	"sync"

	"raftcore/internal/raft"
)

// MockLogStore is a mock implementation of raft.LogStore for testing
type MockLogStore struct {
	mu      sync.RWMutex
	entries []raft.LogEntry

	// Error injection for testing
	AppendError  error
	EntriesError error

	AppendCallCount int
}

// NewMockLogStore creates a new mock log store
func NewMockLogStore() *MockLogStore {
	return &MockLogStore{
		entries: make([]raft.LogEntry, 0),
	}
}

func (m *MockLogStore) Append(entry raft.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCallCount++
	if m.AppendError != nil {
		return m.AppendError
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockLogStore) Entries() ([]raft.LogEntry, error) {
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]raft.LogEntry, len(m.entries))
	copy(result, m.entries)
	return result, nil
}

// Reset clears the stored entries and injected errors
func (m *MockLogStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make([]raft.LogEntry, 0)
	m.AppendError = nil
	m.EntriesError = nil
	m.AppendCallCount = 0
}
