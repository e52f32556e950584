package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"raftcore/internal/raft"
	"raftcore/internal/raft/cluster"
	"raftcore/internal/raft/metrics"
)

// Runs many elections in an in-process cluster, each with a random subset of the peers partitioned, and reports
// how often and how fast a leader was elected
func main() {
	clusterSize := flag.Int("cluster-size", 5, "Number of peers in the cluster")
	rounds := flag.Int("rounds", 1000, "Number of elections to run")
	counting := flag.String("vote-counting", "delivered", "Vote counting policy: delivered or granted")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	outputFile := flag.String("output", "", "Output JSON file for metrics (optional)")
	verbose := flag.Bool("v", false, "Log every protocol decision")
	flag.Parse()

	if *clusterSize < 1 {
		log.Fatal("Cluster size must be at least 1")
	}
	policy, err := raft.ParseVoteCounting(*counting)
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
	}
	defer logger.Sync()

	fmt.Printf("\n")
	fmt.Println("========================================")
	fmt.Println("RAFT ELECTION BENCHMARK")
	fmt.Println("========================================")
	fmt.Printf("Cluster Size:  %d peers\n", *clusterSize)
	fmt.Printf("Rounds:        %d\n", *rounds)
	fmt.Printf("Vote Counting: %v\n", policy)
	fmt.Printf("Seed:          %d\n", *seed)
	fmt.Println("========================================")
	fmt.Println()

	m := metrics.NewMetrics()
	cfg := &raft.Config{Logger: logger.Sugar(), Metrics: m, VoteCounting: policy}
	rng := rand.New(rand.NewSource(*seed))

	elected, expected := 0, 0
	start := time.Now()
	for round := 0; round < *rounds; round++ {
		won, majority := runRound(cfg, *clusterSize, rng)
		if won {
			elected++
		}
		if majority {
			expected++
		}
		// A leader must be elected exactly when a majority is reachable
		if won != majority {
			log.Fatalf("❌ Round %d: elected=%t but majority reachable=%t", round, won, majority)
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("✓ %d/%d rounds elected a leader (%d had a reachable majority)\n", elected, *rounds, expected)
	fmt.Printf("✓ %.0f elections/s\n", float64(*rounds)/elapsed.Seconds())
	fmt.Println()

	report := m.GetReport(*clusterSize)
	report.PrintReport()

	if *outputFile != "" {
		if err := report.SaveJSON(*outputFile); err != nil {
			log.Fatalf("Failed to save report: %v", err)
		}
		fmt.Printf("\n📊 Metrics saved to: %s\n", *outputFile)
	}
}

// runRound partitions a random subset of the peers other than the candidate, then times the candidate out. It
// reports whether the candidate won and whether a majority was reachable.
func runRound(cfg *raft.Config, size int, rng *rand.Rand) (won bool, majority bool) {
	c := cluster.New(cfg)
	ids := make([]raft.PeerID, size)
	for i := range ids {
		ids[i] = raft.PeerID(i + 1)
	}
	if err := c.Add(ids...); err != nil {
		log.Fatalf("Failed to create cluster: %v", err)
	}
	c.ConnectAll()

	candidate := ids[rng.Intn(size)]
	reachable := size
	for _, id := range ids {
		if id != candidate && rng.Intn(2) == 0 {
			if err := c.Partition(id); err != nil {
				log.Fatalf("Failed to partition %d: %v", id, err)
			}
			reachable--
		}
	}

	if err := c.Timeout(context.Background(), candidate); err != nil {
		log.Fatalf("Election failed: %v", err)
	}
	p, err := c.Peer(candidate)
	if err != nil {
		log.Fatal(err)
	}
	return p.Role() == raft.Leader, reachable >= raft.Majority(size)
}
