package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects counters and durations for leader elections. It implements raft.MetricsCollector.
type Metrics struct {
	// RPC counters
	requestVoteCount atomic.Uint64
	votesCounted     atomic.Uint64
	heartbeatCount   atomic.Uint64

	// Leader election metrics
	electionCount    atomic.Uint64
	electionsWon     atomic.Uint64
	electionsAborted atomic.Uint64
	ignoredTimeouts  atomic.Uint64
	electionDuration []time.Duration
	electionMu       sync.Mutex

	// Rejected messages by error kind
	rejections   map[string]uint64
	rejectionsMu sync.Mutex

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		electionDuration: make([]time.Duration, 0, 100),
		rejections:       make(map[string]uint64),
		startTime:        time.Now(),
	}
}

// RecordRequestVote increments the RequestVotes message counter
func (m *Metrics) RecordRequestVote() {
	m.requestVoteCount.Add(1)
}

// RecordVoteCounted increments the number of votes a candidate counted from its links
func (m *Metrics) RecordVoteCounted() {
	m.votesCounted.Add(1)
}

// RecordHeartbeat increments the ReplicateOrHeartbeat message counter
func (m *Metrics) RecordHeartbeat() {
	m.heartbeatCount.Add(1)
}

// RecordElection records a leader election occurrence
func (m *Metrics) RecordElection() {
	m.electionCount.Add(1)
}

func (m *Metrics) RecordElectionWon() {
	m.electionsWon.Add(1)
}

func (m *Metrics) RecordElectionAborted() {
	m.electionsAborted.Add(1)
}

func (m *Metrics) RecordIgnoredTimeout() {
	m.ignoredTimeouts.Add(1)
}

// RecordElectionDuration records how long an election took
func (m *Metrics) RecordElectionDuration(duration time.Duration) {
	m.electionMu.Lock()
	m.electionDuration = append(m.electionDuration, duration)
	m.electionMu.Unlock()
}

// RecordRejection counts a message the peer rejected, keyed by the kind of error returned
func (m *Metrics) RecordRejection(kind string) {
	if kind == "" {
		kind = "Other"
	}
	m.rejectionsMu.Lock()
	m.rejections[kind]++
	m.rejectionsMu.Unlock()
}

// LatencyStats contains percentile statistics for durations
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// GetElectionStats returns statistics about leader elections
func (m *Metrics) GetElectionStats() LatencyStats {
	m.electionMu.Lock()
	durations := make([]time.Duration, len(m.electionDuration))
	copy(durations, m.electionDuration)
	m.electionMu.Unlock()

	if len(durations) == 0 {
		return LatencyStats{}
	}

	sort.Slice(durations, func(i, j int) bool {
		return durations[i] < durations[j]
	})

	durationsMs := make([]float64, len(durations))
	var sum float64
	for i, dur := range durations {
		ms := float64(dur.Microseconds()) / 1000.0
		durationsMs[i] = ms
		sum += ms
	}

	mean := sum / float64(len(durationsMs))

	var variance float64
	for _, dur := range durationsMs {
		diff := dur - mean
		variance += diff * diff
	}
	stddev := math.Sqrt(variance / float64(len(durationsMs)))

	return LatencyStats{
		Count:  len(durations),
		Min:    durationsMs[0],
		Max:    durationsMs[len(durationsMs)-1],
		Mean:   mean,
		P50:    percentile(durationsMs, 50),
		P95:    percentile(durationsMs, 95),
		P99:    percentile(durationsMs, 99),
		StdDev: stddev,
	}
}

// percentile calculates the nth percentile from sorted data
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Rejections returns a copy of the rejection counters
func (m *Metrics) Rejections() map[string]uint64 {
	m.rejectionsMu.Lock()
	defer m.rejectionsMu.Unlock()
	out := make(map[string]uint64, len(m.rejections))
	for k, v := range m.rejections {
		out[k] = v
	}
	return out
}

// Report contains all collected metrics
type Report struct {
	ClusterSize int       `json:"cluster_size"`
	Duration    float64   `json:"duration_seconds"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	// Network metrics
	RequestVoteCount uint64            `json:"request_vote_count"`
	VotesCounted     uint64            `json:"votes_counted"`
	HeartbeatCount   uint64            `json:"heartbeat_count"`
	Rejections       map[string]uint64 `json:"rejections"`

	// Leader election metrics
	ElectionCount    uint64       `json:"election_count"`
	ElectionsWon     uint64       `json:"elections_won"`
	ElectionsAborted uint64       `json:"elections_aborted"`
	IgnoredTimeouts  uint64       `json:"ignored_timeouts"`
	ElectionStats    LatencyStats `json:"election_stats"`
}

// GetReport generates a report of everything collected since the last Reset
func (m *Metrics) GetReport(clusterSize int) Report {
	endTime := time.Now()

	return Report{
		ClusterSize:      clusterSize,
		Duration:         endTime.Sub(m.startTime).Seconds(),
		StartTime:        m.startTime,
		EndTime:          endTime,
		RequestVoteCount: m.requestVoteCount.Load(),
		VotesCounted:     m.votesCounted.Load(),
		HeartbeatCount:   m.heartbeatCount.Load(),
		Rejections:       m.Rejections(),
		ElectionCount:    m.electionCount.Load(),
		ElectionsWon:     m.electionsWon.Load(),
		ElectionsAborted: m.electionsAborted.Load(),
		IgnoredTimeouts:  m.ignoredTimeouts.Load(),
		ElectionStats:    m.GetElectionStats(),
	}
}

// PrintReport prints the report in a human-readable format
func (r *Report) PrintReport() {
	line := strings.Repeat("=", 60)
	fmt.Println("\n" + line)
	fmt.Println("LEADER ELECTION REPORT")
	fmt.Println(line)
	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Cluster Size: %d peers\n", r.ClusterSize)
	fmt.Printf("  Duration: %.2f seconds\n", r.Duration)
	fmt.Printf("  Start: %s\n", r.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("  End: %s\n", r.EndTime.Format("2006-01-02 15:04:05"))

	fmt.Printf("\nMessages:\n")
	fmt.Printf("  RequestVotes: %d\n", r.RequestVoteCount)
	fmt.Printf("  Votes Counted: %d\n", r.VotesCounted)
	fmt.Printf("  ReplicateOrHeartbeat: %d\n", r.HeartbeatCount)

	kinds := make([]string, 0, len(r.Rejections))
	for kind := range r.Rejections {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	fmt.Printf("\nRejections:\n")
	if len(kinds) == 0 {
		fmt.Printf("  None\n")
	}
	for _, kind := range kinds {
		fmt.Printf("  %s: %d\n", kind, r.Rejections[kind])
	}

	fmt.Printf("\nLeader Elections:\n")
	fmt.Printf("  Started: %d\n", r.ElectionCount)
	fmt.Printf("  Won: %d\n", r.ElectionsWon)
	fmt.Printf("  Aborted: %d\n", r.ElectionsAborted)
	fmt.Printf("  Ignored Timeouts: %d\n", r.IgnoredTimeouts)
	if r.ElectionStats.Count > 0 {
		fmt.Printf("  Avg Duration: %.3f ms\n", r.ElectionStats.Mean)
		fmt.Printf("  P50 Duration: %.3f ms\n", r.ElectionStats.P50)
		fmt.Printf("  P95 Duration: %.3f ms\n", r.ElectionStats.P95)
	}

	fmt.Println("\n" + line)
}

// SaveJSON saves the report to a JSON file
func (r *Report) SaveJSON(filename string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", filename, err)
	}
	return nil
}

// Reset clears all collected metrics
func (m *Metrics) Reset() {
	m.electionMu.Lock()
	m.electionDuration = make([]time.Duration, 0, 100)
	m.electionMu.Unlock()

	m.rejectionsMu.Lock()
	m.rejections = make(map[string]uint64)
	m.rejectionsMu.Unlock()

	m.requestVoteCount.Store(0)
	m.votesCounted.Store(0)
	m.heartbeatCount.Store(0)
	m.electionCount.Store(0)
	m.electionsWon.Store(0)
	m.electionsAborted.Store(0)
	m.ignoredTimeouts.Store(0)
	m.startTime = time.Now()
}
