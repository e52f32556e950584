package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"

	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
	"raftcore/internal/raft/cluster"
	"raftcore/internal/raft/metrics"
)

func main() {
	verbose := flag.Bool("v", false, "Log every protocol decision")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
	}
	defer logger.Sync()

	m := metrics.NewMetrics()
	events := pubsub.NewPubSub()
	defer events.GracefulShutdown()
	stopWatching := watchEvents(events)

	cfg := &raft.Config{Logger: logger.Sugar(), Metrics: m, Events: events}

	fmt.Println("========================================")
	fmt.Println("Raft Leader Election Demo")
	fmt.Println("========================================")
	fmt.Println()

	scenarioA(cfg)
	scenarioB(cfg)
	scenarioC(cfg)
	scenarioD(cfg)

	// Every event is fanned out once the client has shut down
	events.GracefulShutdown()
	stopWatching()

	report := m.GetReport(3)
	report.PrintReport()
}

// watchEvents prints leadership changes as they are published. The returned func unsubscribes and waits for the
// printer to finish.
func watchEvents(events *pubsub.PubSubClient) func() {
	won := make(chan *pubsub.Event[raft.ElectionPayload], 16)
	down := make(chan *pubsub.Event[raft.LeaderPayload], 16)
	wonID := pubsub.Subscribe(events, raft.ElectionWon, won, pubsub.SubscriptionOptions{IsBlocking: true})
	downID := pubsub.Subscribe(events, raft.SteppedDown, down, pubsub.SubscriptionOptions{IsBlocking: true})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for won != nil || down != nil {
			select {
			case e, ok := <-won:
				if !ok {
					won = nil
					continue
				}
				fmt.Printf("   📣 peer %d won term %d with %d votes\n", e.Payload.Peer, e.Payload.Term, e.Payload.Votes)
			case e, ok := <-down:
				if !ok {
					down = nil
					continue
				}
				fmt.Printf("   📣 peer %d stepped down from %v, leader is %d\n", e.Payload.Peer, e.Payload.From, e.Payload.Leader)
			}
		}
	}()
	return func() {
		events.Unsubscribe(raft.ElectionWon, wonID)
		events.Unsubscribe(raft.SteppedDown, downID)
		<-done
	}
}

func newCluster(cfg *raft.Config, ids ...raft.PeerID) *cluster.Cluster {
	c := cluster.New(cfg)
	if err := c.Add(ids...); err != nil {
		log.Fatalf("Failed to create cluster: %v", err)
	}
	c.ConnectAll()
	return c
}

func scenarioA(cfg *raft.Config) {
	header("Scenario A: two peers, one election")
	c := newCluster(cfg, 0, 1)

	step("peer 0 times out", c.Timeout(context.Background(), 0))
	printStates(c)
}

func scenarioB(cfg *raft.Config) {
	header("Scenario B: three peers, contested term")
	c := newCluster(cfg, 0, 1, 2)

	step("peer 0 times out", c.Timeout(context.Background(), 0))
	step("peer 1 times out", c.Timeout(context.Background(), 1))
	step("peer 2 times out", c.Timeout(context.Background(), 2))
	printStates(c)
}

func scenarioC(cfg *raft.Config) {
	header("Scenario C: a follower replicates its leader's entry")
	c := newCluster(cfg, 1)

	step("peer 1 receives an entry from 0", c.Send(1, raft.NewReplicateOrHeartbeat(0, "new log entry")))
	printStates(c)
}

func scenarioD(cfg *raft.Config) {
	header("Scenario D: a vote request at term 0")
	c := newCluster(cfg, 1)

	step("peer 1 receives RequestVotes{from=2 term=0}", c.Send(1, raft.NewRequestVotes(2, 0)))
	printStates(c)
}

func header(title string) {
	fmt.Println("----------------------------------------")
	fmt.Println(title)
	fmt.Println("----------------------------------------")
}

func step(what string, err error) {
	if err != nil {
		fmt.Printf("⚠️  %s: %v\n", what, err)
		return
	}
	fmt.Printf("✓ %s\n", what)
}

func printStates(c *cluster.Cluster) {
	fmt.Println()
	for _, p := range c.Peers() {
		s := p.Snapshot()
		leader := "none"
		if l, ok := s.Leader(); ok {
			leader = fmt.Sprint(l)
		}
		logs, err := p.Logs()
		if err != nil {
			log.Fatalf("Failed to read logs of peer %d: %v", p.ID(), err)
		}
		entries := make([]string, len(logs))
		for i, e := range logs {
			entries[i] = fmt.Sprintf("%q", e)
		}
		fmt.Printf("   peer %d: %-9v term=%d leader=%s timeout=%t logs=[%s]\n",
			s.ID, s.Role, s.Term, leader, s.TimeoutFlag, strings.Join(entries, ", "))
	}
	fmt.Println()
}
