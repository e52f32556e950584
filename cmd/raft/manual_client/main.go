package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"raftcore/internal/raft"
	"raftcore/internal/raft/server"
	"raftcore/internal/raft/wire"
)

func main() {
	// Command line flags
	serverAddr := flag.String("server", "localhost:50051", "Server address to connect to")
	op := flag.String("op", "state", "Operation: state, timeout or broadcast")
	entry := flag.String("entry", "hello", "Entry to broadcast, for -op broadcast")
	flag.Parse()

	fmt.Printf("================================================\n")
	fmt.Printf("Raft Client\n")
	fmt.Printf("================================================\n")
	fmt.Printf("Server:    %s\n", *serverAddr)
	fmt.Printf("Operation: %s\n", *op)
	fmt.Printf("================================================\n\n")

	conn, err := grpc.NewClient(*serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("❌ Failed to connect to server: %v\n\nMake sure the node is running:\n  go run ./cmd/raft/node -id 1\n", err)
	}
	defer conn.Close()

	client := server.NewPeerServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch *op {
	case "state":
		printState(ctx, client)
	case "timeout":
		resp, err := client.Timeout(ctx, &wire.TimeoutRequest{RequestID: uuid.NewString()})
		if err != nil {
			log.Fatalf("❌ Timeout failed: %v", err)
		}
		report("Timeout", resp.Err())
		printState(ctx, client)
	case "broadcast":
		resp, err := client.Broadcast(ctx, &wire.BroadcastRequest{RequestID: uuid.NewString(), Entry: *entry})
		if err != nil {
			log.Fatalf("❌ Broadcast failed: %v", err)
		}
		report("Broadcast", raft.ErrorFromKind(resp.ErrorKind, 0))
		fmt.Printf("   Acknowledged by %d peers\n", resp.Acked)
	default:
		log.Fatalf("❌ Unknown operation %q", *op)
	}
	fmt.Println()
}

func report(op string, err error) {
	if err != nil {
		fmt.Printf("❌ %s rejected: %v\n", op, err)
		return
	}
	fmt.Printf("✅ %s accepted\n", op)
}

func printState(ctx context.Context, client *server.PeerServiceClient) {
	resp, err := client.GetState(ctx, &wire.StateRequest{})
	if err != nil {
		log.Fatalf("❌ GetState failed: %v", err)
	}
	s := resp.State()
	leader := "none"
	if l, ok := s.Leader(); ok {
		leader = fmt.Sprint(l)
	}
	fmt.Printf("   Peer:    %d\n", s.ID)
	fmt.Printf("   Role:    %v\n", s.Role)
	fmt.Printf("   Term:    %d\n", s.Term)
	fmt.Printf("   Leader:  %s\n", leader)
	fmt.Printf("   Timeout: %t\n", s.TimeoutFlag)
	fmt.Printf("   Links:   %v\n", resp.Links)
	fmt.Printf("   Logs:\n")
	for i, e := range resp.Logs {
		fmt.Printf("     %3d  %s\n", i+1, strings.TrimSpace(e))
	}
}
