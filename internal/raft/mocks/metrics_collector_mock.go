package mocks

import (
	"sync"
	"time"
)

// MockMetricsCollector is a mock implementation of raft.MetricsCollector for testing
type MockMetricsCollector struct {
	mu                sync.RWMutex
	ElectionCount     int
	ElectionsWon      int
	ElectionsAborted  int
	ElectionDurations []time.Duration
	RequestVoteCount  int
	VotesCounted      int
	HeartbeatCount    int
	IgnoredTimeouts   int
	RejectionsByKind  map[string]int
}

// NewMockMetricsCollector creates a new mock metrics collector
func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{
		ElectionDurations: make([]time.Duration, 0),
		RejectionsByKind:  make(map[string]int),
	}
}

func (m *MockMetricsCollector) RecordElection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionCount++
}

func (m *MockMetricsCollector) RecordElectionWon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionsWon++
}

func (m *MockMetricsCollector) RecordElectionAborted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionsAborted++
}

func (m *MockMetricsCollector) RecordElectionDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionDurations = append(m.ElectionDurations, duration)
}

func (m *MockMetricsCollector) RecordRequestVote() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestVoteCount++
}

func (m *MockMetricsCollector) RecordVoteCounted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VotesCounted++
}

func (m *MockMetricsCollector) RecordHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeartbeatCount++
}

func (m *MockMetricsCollector) RecordIgnoredTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IgnoredTimeouts++
}

func (m *MockMetricsCollector) RecordRejection(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectionsByKind[kind]++
}

// Rejections returns how many rejections of kind were recorded
func (m *MockMetricsCollector) Rejections(kind string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RejectionsByKind[kind]
}

// Reset clears all recorded metrics
func (m *MockMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ElectionCount = 0
	m.ElectionsWon = 0
	m.ElectionsAborted = 0
	m.ElectionDurations = make([]time.Duration, 0)
	m.RequestVoteCount = 0
	m.VotesCounted = 0
	m.HeartbeatCount = 0
	m.IgnoredTimeouts = 0
	m.RejectionsByKind = make(map[string]int)
}
