package raft

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyElected matches every *AlreadyElectedError via errors.Is.
	ErrAlreadyElected = errors.New("already elected")

	// ErrInvalidTerm is returned when a vote request carries a term strictly below the receiver's term.
	ErrInvalidTerm = errors.New("invalid term")

	// ErrNoQuorum is returned when a vote request from a higher term cannot be granted by the receiver.
	ErrNoQuorum = errors.New("no quorum")

	// ErrOffline is returned for vote requests carrying term 0, and by transports that cannot reach a peer.
	ErrOffline = errors.New("offline")

	ErrNotLeader      = errors.New("not leader")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownPeer    = errors.New("unknown peer")
	ErrUnknownMessage = errors.New("unknown message type")
)

// AlreadyElectedError is returned by OnTimeout when the peer is already Leader, or when a leader was recorded
// while votes were being solicited.
type AlreadyElectedError struct {
	Leader PeerID
}

func (e *AlreadyElectedError) Error() string {
	return fmt.Sprintf("%v: peer %d is leader", ErrAlreadyElected, e.Leader)
}

func (e *AlreadyElectedError) Is(target error) bool {
	return target == ErrAlreadyElected
}

// ErrorKind names the protocol error an error carries, or "" for nil and unknown errors. It is used as a metrics
// label and as the on-the-wire representation of an error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyElected):
		return "AlreadyElected"
	case errors.Is(err, ErrInvalidTerm):
		return "InvalidTerm"
	case errors.Is(err, ErrNoQuorum):
		return "NoQuorum"
	case errors.Is(err, ErrOffline):
		return "Offline"
	case errors.Is(err, ErrNotLeader):
		return "NotLeader"
	default:
		return ""
	}
}

// ErrorFromKind is the inverse of ErrorKind. leader is only used for "AlreadyElected". An empty kind yields nil;
// an unrecognised kind yields a plain error carrying the kind.
func ErrorFromKind(kind string, leader PeerID) error {
	switch kind {
	case "":
		return nil
	case "AlreadyElected":
		return &AlreadyElectedError{Leader: leader}
	case "InvalidTerm":
		return ErrInvalidTerm
	case "NoQuorum":
		return ErrNoQuorum
	case "Offline":
		return ErrOffline
	case "NotLeader":
		return ErrNotLeader
	default:
		return fmt.Errorf("unknown remote error %q", kind)
	}
}
