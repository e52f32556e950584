package raft

// The functions below are the role/term state machine. They take a State by value and return the next one, and
// never touch a Peer, so each transition can be checked on its own:
//
//	Follower  --timeout-->                       Candidate (term+1)
//	Candidate --majority, no leader recorded-->  Leader    (leader = self)
//	any       --ReplicateOrHeartbeat(from)-->    Follower  (leader = from, timeout flag toggled)
//	any       --RequestVotes(term > current)-->  same role (term = sender's)

// BecomeCandidate moves a Follower into a new election term.
func BecomeCandidate(s State) State {
	s.Role = Candidate
	s.Term++
	return s
}

// BecomeLeader records s.ID as the leader of its current term.
func BecomeLeader(s State) State {
	id := s.ID
	s.Role = Leader
	s.CurrentLeader = &id
	return s
}

// StepDown accepts leader as the current leader. Whatever the previous role, the result is a Follower.
func StepDown(s State, leader PeerID) State {
	s.Role = Follower
	s.CurrentLeader = &leader
	s.TimeoutFlag = !s.TimeoutFlag
	return s
}

// AdoptTerm moves s to term. Terms never decrease: a lower or equal term leaves s unchanged.
func AdoptTerm(s State, term uint64) State {
	if term > s.Term {
		s.Term = term
	}
	return s
}
