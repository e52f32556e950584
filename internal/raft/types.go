package raft

import "fmt"

// PeerID is the identity of a peer in the cluster. It is unique per peer; InvalidID is reserved.
type PeerID uint64

// InvalidID denotes "no valid voter identity". A peer carrying it can receive messages but never grants a vote.
const InvalidID PeerID = 0

// A Role is the role of a peer at any given point: follower, candidate or leader. A peer starts as a Follower.
type Role uint64

// As Golang does not support Enums this is a common pattern for implementing one
const (
	Follower Role = iota
	Candidate
	Leader
)

// String returns the string representation of the Role
func (r Role) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// LogEntry is an opaque, append-only record in a peer's log.
type LogEntry string

// MessageType identifies the kind of protocol message exchanged between peers
type MessageType int

const (
	// ReplicateOrHeartbeatMsg is sent by a leader. It both resets the receiver's timeout bookkeeping and carries a
	// single LogEntry.
	ReplicateOrHeartbeatMsg MessageType = iota
	// RequestVotesMsg is sent by a candidate to solicit support for its candidacy in a given term.
	RequestVotesMsg
)

func (m MessageType) String() string {
	switch m {
	case ReplicateOrHeartbeatMsg:
		return "ReplicateOrHeartbeat"
	case RequestVotesMsg:
		return "RequestVotes"
	default:
		return "Unknown"
	}
}

// Message is a protocol message. Only the fields relevant to Type are meaningful: Entry for
// ReplicateOrHeartbeatMsg, Term for RequestVotesMsg.
type Message struct {
	Type  MessageType
	From  PeerID
	Term  uint64
	Entry LogEntry
}

// NewReplicateOrHeartbeat builds the message a leader sends to replicate an entry and hold off elections.
func NewReplicateOrHeartbeat(from PeerID, entry LogEntry) Message {
	return Message{Type: ReplicateOrHeartbeatMsg, From: from, Entry: entry}
}

// NewRequestVotes builds the message a candidate sends to solicit a vote for term.
func NewRequestVotes(from PeerID, term uint64) Message {
	return Message{Type: RequestVotesMsg, From: from, Term: term}
}

func (m Message) String() string {
	switch m.Type {
	case ReplicateOrHeartbeatMsg:
		return fmt.Sprintf("%v{from=%d entry=%q}", m.Type, m.From, m.Entry)
	default:
		return fmt.Sprintf("%v{from=%d term=%d}", m.Type, m.From, m.Term)
	}
}

// Response is what a peer answers to a delivered Message. VoteGranted is only set when a RequestVotes message
// was explicitly granted.
type Response struct {
	Term        uint64
	VoteGranted bool
}

// State is a point in time copy of a peer's observable state.
type State struct {
	ID            PeerID
	Role          Role
	Term          uint64
	CurrentLeader *PeerID
	TimeoutFlag   bool
}

// Leader returns the leader recorded in the State, if any.
func (s State) Leader() (PeerID, bool) {
	if s.CurrentLeader == nil {
		return InvalidID, false
	}
	return *s.CurrentLeader, true
}

// Majority is the number of votes needed to win an election in a cluster of clusterSize peers (self included):
// strictly more than half, floor(n/2) + 1.
func Majority(clusterSize int) int {
	return clusterSize/2 + 1
}
