package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"raftcore/internal/raft"
	"raftcore/internal/raft/metrics"
	"raftcore/internal/raft/server"
)

// Runs a whole cluster in one process, one gRPC server per node on consecutive localhost ports
func main() {
	clusterSize := flag.Int("size", 3, "Number of nodes in the cluster")
	basePort := flag.Int("base-port", 50051, "Port of the first node")
	metricsOut := flag.String("metrics", "", "Output JSON file for the metrics report (optional)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// All nodes record into the same collector
	m := metrics.NewMetrics()

	// Reserve addresses for the cluster
	peers := reserveAddresses(*clusterSize, *basePort)

	// Create all servers in the cluster
	servers := createCluster(peers, m, sugar)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Start graceful shutdown monitoring before bootCluster blocks
	go listenForShutdown(servers, sugar, done)

	// This will block indefinitely until shutdown is triggered
	bootCluster(servers, *basePort, sugar)

	// Wait for the graceful shutdown to complete
	<-done

	report := m.GetReport(*clusterSize)
	report.PrintReport()
	if *metricsOut != "" {
		if err := report.SaveJSON(*metricsOut); err != nil {
			sugar.Errorf("Failed to save metrics: %v", err)
		}
	}
}

func reserveAddresses(clusterSize int, basePort int) []server.PeerAddr {
	var allPeers []server.PeerAddr

	for i := 0; i < clusterSize; i++ {
		addr := fmt.Sprintf("localhost:%d", basePort+i)
		allPeers = append(allPeers, server.PeerAddr{ID: raft.PeerID(i + 1), Address: server.Address(addr)})
	}

	return allPeers
}

func createCluster(peers []server.PeerAddr, m *metrics.Metrics, logger *zap.SugaredLogger) []*server.Server {
	// Each server creates its OWN PubSub instance to prevent cross-server event pollution
	var servers []*server.Server
	for _, p := range peers {
		srv, err := server.NewServer(&server.ServerConfig{
			ID:      p.ID,
			Peers:   peers,
			Logger:  logger.With("node", p.ID),
			Metrics: m,
		})
		if err != nil {
			logger.Fatalf("Failed to create server %d: %v", p.ID, err)
		}
		servers = append(servers, srv)
	}
	return servers
}

func bootCluster(servers []*server.Server, basePort int, logger *zap.SugaredLogger) {
	var wg sync.WaitGroup

	for i, srv := range servers {
		wg.Add(1)
		port := basePort + i
		go func(s *server.Server, p int) {
			defer wg.Done()
			logger.Infof("Starting server %d on port %d", s.ID, p)
			if err := s.StartServer(p); err != nil {
				logger.Errorf("Server %v stopped: %v", s.ID, err)
			}
		}(srv, port)
	}

	// Every server returns from Start once it has been shut down
	wg.Wait()
	logger.Infof("All %d servers stopped", len(servers))
}

func listenForShutdown(servers []*server.Server, logger *zap.SugaredLogger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Block the thread until an interrupt signal is received.
	<-signalCtx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Disable signal handler so second Ctrl+C will force immediate exit of the process via the OS

	// All servers have 5 seconds to finish the request they are currently handling
	forceShutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gracefulShutdownDone := gracefullyShutdownCluster(servers)

	// Race the shutdown completion against the timeout
	select {
	case <-gracefulShutdownDone:
		logger.Info("All servers shutdown gracefully")
	case <-forceShutdownCtx.Done():
		logger.Warn("Graceful shutdown timeout reached, forcing shutdown...")
		for _, raftServer := range servers {
			raftServer.ForceShutdown()
		}
		<-gracefulShutdownDone
		logger.Info("Force shutdown complete")
	}

	logger.Info("Cluster exiting")
	done <- true
}

func gracefullyShutdownCluster(servers []*server.Server) chan struct{} {
	var gracefulShutdownWg sync.WaitGroup

	// Gracefully Shutdown all servers in a concurrent manner
	for _, raftServer := range servers {
		gracefulShutdownWg.Add(1)
		go func(s *server.Server) {
			defer gracefulShutdownWg.Done()
			s.GracefulShutdown()
		}(raftServer)
	}

	// Convert the blocking WaitGroup.Wait() to a channel signal
	gracefulShutdownDone := make(chan struct{})
	go func() {
		gracefulShutdownWg.Wait()
		close(gracefulShutdownDone)
	}()

	return gracefulShutdownDone
}
