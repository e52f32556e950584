package server

import (
	"context"
	"fmt"
	"time"

	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
)

/*
In this file we define all Background jobs that could run in a given Server. Each job is responsible for subscribing to
ServerShutDown events in order to exit gracefully, and prevent go routine leakage.
See: https://medium.com/@srajsonu/understanding-and-preventing-goroutine-leaks-in-go-623cac542954
*/

// newStopJobCh subscribes a job to ServerShutDown. It must be called before the job's goroutine is started, so that
// a shutdown right after the start is not missed.
func newStopJobCh(pubSub *pubsub.PubSubClient) chan *pubsub.Event[struct{}] {
	stopJobCh := make(chan *pubsub.Event[struct{}], 1)
	pubsub.Subscribe(pubSub, ServerShutDown, stopJobCh, pubsub.SubscriptionOptions{IsBlocking: false})
	return stopJobCh
}

// TrackElectionTimeoutJob publishes ElectionTimeoutExpired whenever electionTimeoutTimer fires while the peer is not
// Leader, then calls resetTimer to re-arm it with a fresh random timeout. The server also resets the timer on every
// ReplicateOrHeartbeat it receives, so the timer only fires when the leader has gone quiet. It should be called as a
// goroutine.
func TrackElectionTimeoutJob(ctx serverCtx, peer *raft.Peer, electionTimeoutTimer *time.Timer, resetTimer func(),
	pubSub *pubsub.PubSubClient, stopJobCh <-chan *pubsub.Event[struct{}], logger raft.Logger) {
	logger.Debugf("[JOB] Started TrackElectionTimeoutJob for server %d", ctx.ID)

	for {
		select {
		case expiredTime := <-electionTimeoutTimer.C:
			if peer.Role() != raft.Leader {
				logger.Debugf("[JOB] [SERVER-%d] [TERM-%d] Election timeout expired at %v, publishing event",
					ctx.ID, peer.Term(), expiredTime.Format(time.RFC3339Nano))
				pubsub.Publish(pubSub, pubsub.NewEvent(ElectionTimeoutExpired, expiredTime))
			}
			// Once the timer expires, the timer.C channel will NOT receive any values again until Reset() is called
			resetTimer()
		case <-stopJobCh:
			// Stop the timer and exit the goroutine
			logger.Debugf("[JOB] Stopping TrackElectionTimeoutJob for server %d", ctx.ID)
			electionTimeoutTimer.Stop()
			return
		}
	}
}

// HeartbeatJob makes the peer broadcast a heartbeat entry to its links every interval while it is Leader, so that
// its followers do not time out. It should be called as a goroutine.
func HeartbeatJob(ctx serverCtx, peer *raft.Peer, interval time.Duration, stopJobCh <-chan *pubsub.Event[struct{}],
	logger raft.Logger) {
	logger.Debugf("[JOB] Started HeartbeatJob for server %d", ctx.ID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if peer.Role() != raft.Leader {
				continue
			}
			// Heartbeats must not outlive the next tick
			hbCtx, cancel := context.WithTimeout(context.Background(), interval)
			entry := raft.LogEntry(fmt.Sprintf("heartbeat from %d at term %d", ctx.ID, peer.Term()))
			acked, err := peer.Broadcast(hbCtx, entry)
			cancel()
			if err != nil {
				// Lost leadership between the role check and the broadcast
				logger.Debugf("[JOB] [SERVER-%d] Heartbeat skipped: %v", ctx.ID, err)
				continue
			}
			logger.Debugf("[JOB] [SERVER-%d] Heartbeat acknowledged by %d peers", ctx.ID, acked)
		case <-stopJobCh:
			logger.Debugf("[JOB] Stopping HeartbeatJob for server %d", ctx.ID)
			return
		}
	}
}
