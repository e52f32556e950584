package raft

import "raftcore/internal/pubsub"

// Events published on Config.Events. Other packages sharing the client start their own EventType values at
// FirstFreeEventType.
const (
	// ElectionStarted is published when a Follower times out and becomes Candidate. Payload: ElectionPayload.
	ElectionStarted pubsub.EventType = iota
	// ElectionWon is published when a Candidate reaches a majority and becomes Leader. Payload: ElectionPayload.
	ElectionWon
	// SteppedDown is published when a Candidate or Leader becomes Follower on a ReplicateOrHeartbeat.
	// Payload: LeaderPayload.
	SteppedDown
	// TermAdvanced is published when a vote request from a higher term is adopted. Payload: TermPayload.
	TermAdvanced

	FirstFreeEventType
)

// ElectionPayload travels with ElectionStarted and ElectionWon events.
type ElectionPayload struct {
	Peer  PeerID
	Term  uint64
	Votes int
}

// LeaderPayload travels with SteppedDown events.
type LeaderPayload struct {
	Peer   PeerID
	From   Role
	Leader PeerID
}

// TermPayload travels with TermAdvanced events.
type TermPayload struct {
	Peer     PeerID
	Previous uint64
	Term     uint64
}

func publish[T any](p *pubsub.PubSubClient, eventType pubsub.EventType, payload T) {
	if p == nil {
		return
	}
	pubsub.Publish(p, pubsub.NewEvent(eventType, payload))
}
