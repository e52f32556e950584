package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"raftcore/internal/config"
	"raftcore/internal/raft"
	"raftcore/internal/raft/metrics"
	"raftcore/internal/raft/server"
	"raftcore/internal/raft/storage"
)

func main() {
	configFile := flag.String("config", "cluster.yaml", "Cluster configuration file")
	id := flag.Uint64("id", 0, "ID of this node in the cluster file")
	metricsOut := flag.String("metrics", "", "Output JSON file for the metrics report (optional)")
	flag.Parse()

	cfg, err := config.ReadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}
	self, err := cfg.Peer(raft.PeerID(*id))
	if err != nil {
		log.Fatalf("Node %d is not part of the cluster: %v", *id, err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// Create data directory for the BBolt databases
	dir := cfg.Dir
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		sugar.Fatalf("Failed to create data directory: %v", err)
	}
	dbPath := filepath.Join(dir, fmt.Sprintf("raft-%d.db", self.ID))
	store, err := storage.NewBboltStore(dbPath)
	if err != nil {
		sugar.Fatalf("Failed to open log store: %v", err)
	}
	defer store.Close()
	if err := logRecovered(sugar, self.ID, dbPath, store); err != nil {
		sugar.Fatalf("Failed to read log store: %v", err)
	}

	counting, _ := cfg.Counting()
	peers := make([]server.PeerAddr, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, server.PeerAddr{ID: p.ID, Address: server.Address(p.Address)})
	}

	m := metrics.NewMetrics()
	srv, err := server.NewServer(&server.ServerConfig{
		ID:                 self.ID,
		Peers:              peers,
		ElectionTimeoutMin: cfg.ElectionTimeout.Min,
		ElectionTimeoutMax: cfg.ElectionTimeout.Max,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		VoteCounting:       counting,
		Logger:             sugar,
		Metrics:            m,
		LogStore:           store,
	})
	if err != nil {
		sugar.Fatalf("Failed to create server: %v", err)
	}

	done := make(chan struct{})
	go listenForShutdown(srv, sugar, done)

	// This blocks until the server is shut down
	if err := srv.Start(listen(sugar, self.Address)); err != nil {
		sugar.Errorf("Server %d stopped: %v", self.ID, err)
	}
	<-done

	report := m.GetReport(len(cfg.Peers))
	report.PrintReport()
	if *metricsOut != "" {
		if err := report.SaveJSON(*metricsOut); err != nil {
			sugar.Errorf("Failed to save metrics: %v", err)
		} else {
			sugar.Infof("Metrics saved to %s", *metricsOut)
		}
	}
}

func newLogger(cfg *config.Cluster) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func listen(logger *zap.SugaredLogger, addr string) *net.TCPListener {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		logger.Fatalf("Invalid address %s: %v", addr, err)
	}
	lis, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		logger.Fatalf("Failed to listen on %s: %v", addr, err)
	}
	return lis
}

func listenForShutdown(srv *server.Server, logger *zap.SugaredLogger, done chan<- struct{}) {
	defer close(done)

	// Create context that listens for the interrupt signal from the OS.
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // A second Ctrl+C now kills the process

	graceful := make(chan struct{})
	go func() {
		srv.GracefulShutdown()
		close(graceful)
	}()

	select {
	case <-graceful:
		logger.Info("Server shutdown gracefully")
	case <-time.After(5 * time.Second):
		logger.Warn("Graceful shutdown timeout reached, forcing shutdown...")
		srv.ForceShutdown()
		<-graceful
	}
}

// recoveredTail is how many of the newest persisted entries are logged at startup
const recoveredTail = 3

// logRecovered reports what a restarted node finds in its log store
func logRecovered(logger *zap.SugaredLogger, id raft.PeerID, path string, store *storage.BboltStore) error {
	last, err := store.LastIndex()
	if err != nil {
		return err
	}
	if last == 0 {
		logger.Infof("[SERVER-%d] Starting with an empty log at %s", id, path)
		return nil
	}

	from := uint64(1)
	if last > recoveredTail {
		from = last - recoveredTail + 1
	}
	tail, err := store.EntriesFrom(from)
	if err != nil {
		return err
	}
	logger.Infof("[SERVER-%d] Recovered %d log entries from %s, newest %q", id, last, path, tail)
	return nil
}
