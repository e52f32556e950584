package server

import (
	"context"
	"errors"
	"time"

	"raftcore/internal/pubsub"
	"raftcore/internal/raft"
)

// Orchestrator reacts to the events of a Server: it runs OnTimeout when the election timeout expires and reports
// the peer's leadership changes.
type Orchestrator struct {
	// A channel where a signal is sent once the ElectionTimeout of a server expires. This channel is buffered.
	electionTimeoutExpiredChan chan *pubsub.Event[time.Time]
	// A channel where a shutdown signal is received. It signals that the Orchestrator running in a goroutine should
	// exit. This channel is buffered.
	shutDownChan chan *pubsub.Event[struct{}]
	// Leadership changes published by the peer
	electionWonChan chan *pubsub.Event[raft.ElectionPayload]
	steppedDownChan chan *pubsub.Event[raft.LeaderPayload]

	// Upper bound for a single election, vote solicitation and announcement included
	electionDeadline time.Duration
	logger           raft.Logger
	// The peer that is orchestrated.
	peer *raft.Peer
}

// Run runs the Orchestrator. It should be executed as a goroutine.
func (o *Orchestrator) Run() {
	for {
		select {
		case <-o.electionTimeoutExpiredChan:
			o.beginElection()
		case ev := <-o.electionWonChan:
			o.logger.Infof("[ORCHESTRATOR] [SERVER-%d] [TERM-%d] Became leader with %d votes",
				ev.Payload.Peer, ev.Payload.Term, ev.Payload.Votes)
		case ev := <-o.steppedDownChan:
			o.logger.Infof("[ORCHESTRATOR] [SERVER-%d] Stepped down from %v, following %d",
				ev.Payload.Peer, ev.Payload.From, ev.Payload.Leader)
		case <-o.shutDownChan:
			return
		}
	}
}

func (o *Orchestrator) beginElection() {
	ctx, cancel := context.WithTimeout(context.Background(), o.electionDeadline)
	defer cancel()

	err := o.peer.OnTimeout(ctx)
	switch {
	case err == nil:
	case errors.Is(err, raft.ErrAlreadyElected):
		o.logger.Debugf("[ORCHESTRATOR] [SERVER-%d] Election skipped: %v", o.peer.ID(), err)
	default:
		o.logger.Errorf("[ORCHESTRATOR] [SERVER-%d] Election failed: %v", o.peer.ID(), err)
	}
}

func NewOrchestrator(pubSub *pubsub.PubSubClient, peer *raft.Peer, electionDeadline time.Duration, logger raft.Logger) *Orchestrator {
	o := &Orchestrator{
		electionTimeoutExpiredChan: make(chan *pubsub.Event[time.Time], 1),
		shutDownChan:               make(chan *pubsub.Event[struct{}], 1),
		electionWonChan:            make(chan *pubsub.Event[raft.ElectionPayload], 8),
		steppedDownChan:            make(chan *pubsub.Event[raft.LeaderPayload], 8),
		electionDeadline:           electionDeadline,
		logger:                     logger,
		peer:                       peer,
	}

	pubsub.Subscribe(pubSub, ServerShutDown, o.shutDownChan, pubsub.SubscriptionOptions{IsBlocking: false})
	pubsub.Subscribe(pubSub, ElectionTimeoutExpired, o.electionTimeoutExpiredChan, pubsub.SubscriptionOptions{IsBlocking: false})
	pubsub.Subscribe(pubSub, raft.ElectionWon, o.electionWonChan, pubsub.SubscriptionOptions{IsBlocking: false})
	pubsub.Subscribe(pubSub, raft.SteppedDown, o.steppedDownChan, pubsub.SubscriptionOptions{IsBlocking: false})

	return o
}
