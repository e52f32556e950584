package raft

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// OnTimeout is called when the peer has not heard from a leader and may start an election.
//
// A Leader fails with *AlreadyElectedError naming itself. A Candidate ignores the timeout and returns nil. A
// Follower becomes Candidate for a new term, votes for itself and sends RequestVotes to every link in link order.
// If a leader is known once all votes were solicited, the election is abandoned with *AlreadyElectedError naming
// that leader. Otherwise a majority of the full cluster (self and links) makes the peer Leader, which then
// announces itself to every link. Failed deliveries are never returned: they simply do not count as votes, and
// the announcement is best effort. Not reaching a majority is not an error; the peer stays Candidate.
func (p *Peer) OnTimeout(ctx context.Context) error {
	p.mu.Lock()
	switch p.state.Role {
	case Leader:
		id, term := p.id, p.state.Term
		p.mu.Unlock()
		p.logger.Debugf("[PEER-%d] [TERM-%d] Timeout while Leader, nothing to do", id, term)
		return &AlreadyElectedError{Leader: id}
	case Candidate:
		id, term := p.id, p.state.Term
		p.mu.Unlock()
		p.metrics.RecordIgnoredTimeout()
		p.logger.Debugf("[PEER-%d] [TERM-%d] Timeout while Candidate, election already in progress", id, term)
		return nil
	}

	p.state = BecomeCandidate(p.state)
	id, term := p.id, p.state.Term
	links := slices.Clone(p.links)
	transport := p.transport
	p.mu.Unlock()

	start := time.Now()
	majority := Majority(len(links) + 1)
	p.metrics.RecordElection()
	publish(p.events, ElectionStarted, ElectionPayload{Peer: id, Term: term, Votes: 1})
	p.logger.Infof("[PEER-%d] [TERM-%d] Initiated a new election, %d of %d votes needed",
		id, term, majority, len(links)+1)

	votes := p.solicitVotes(ctx, transport, links, NewRequestVotes(id, term))

	p.mu.Lock()
	if leader, ok := p.state.Leader(); ok {
		p.mu.Unlock()
		p.metrics.RecordElectionAborted()
		p.logger.Infof("[PEER-%d] [TERM-%d] Abandoned election with %d votes, peer %d is already leader",
			id, term, votes, leader)
		return &AlreadyElectedError{Leader: leader}
	}

	if votes < majority {
		p.mu.Unlock()
		p.metrics.RecordElectionDuration(time.Since(start))
		// No leader change. A later election is needed, as per option c) of Section 5.2 in the Raft paper
		p.logger.Infof("[PEER-%d] [TERM-%d] Candidate neither won, nor lost the election (%d/%d votes)",
			id, term, votes, majority)
		return nil
	}

	p.state = BecomeLeader(p.state)
	// A vote request from a higher term may have arrived while soliciting
	term = p.state.Term
	p.mu.Unlock()

	p.metrics.RecordElectionWon()
	p.metrics.RecordElectionDuration(time.Since(start))
	publish(p.events, ElectionWon, ElectionPayload{Peer: id, Term: term, Votes: votes})
	p.logger.Infof("[PEER-%d] [TERM-%d] Won the election with %d/%d votes", id, term, votes, len(links)+1)

	announcement := LogEntry(fmt.Sprintf("new leader %d at term %d", id, term))
	p.replicate(ctx, transport, links, NewReplicateOrHeartbeat(id, announcement))
	return nil
}

// Broadcast sends entry to every link as a ReplicateOrHeartbeat from p, best effort, and returns how many links
// accepted it. Only a Leader may broadcast.
func (p *Peer) Broadcast(ctx context.Context, entry LogEntry) (int, error) {
	p.mu.Lock()
	if p.state.Role != Leader {
		role := p.state.Role
		p.mu.Unlock()
		return 0, fmt.Errorf("%w: peer %d is %v", ErrNotLeader, p.id, role)
	}
	id := p.id
	links := slices.Clone(p.links)
	transport := p.transport
	p.mu.Unlock()

	return p.replicate(ctx, transport, links, NewReplicateOrHeartbeat(id, entry)), nil
}

// solicitVotes returns the number of votes counted for req, the candidate's own vote included.
func (p *Peer) solicitVotes(ctx context.Context, transport Transport, links []PeerID, req Message) int {
	votes := 1
	for _, to := range links {
		p.metrics.RecordRequestVote()
		resp, err := transport.Deliver(ctx, to, req)
		if err != nil {
			p.logger.Debugf("[PEER-%d] [TERM-%d] Vote request to %d failed: %v", req.From, req.Term, to, err)
			continue
		}
		if p.voteCounting == CountGranted && !resp.VoteGranted {
			p.logger.Debugf("[PEER-%d] [TERM-%d] Peer %d accepted the vote request without granting it",
				req.From, req.Term, to)
			continue
		}
		votes++
		p.metrics.RecordVoteCounted()
	}
	return votes
}

// replicate delivers msg to every link, ignoring failures, and returns the number of successful deliveries.
func (p *Peer) replicate(ctx context.Context, transport Transport, links []PeerID, msg Message) int {
	acked := 0
	for _, to := range links {
		p.metrics.RecordHeartbeat()
		if _, err := transport.Deliver(ctx, to, msg); err != nil {
			p.logger.Debugf("[PEER-%d] Replicate to %d failed: %v", msg.From, to, err)
			continue
		}
		acked++
	}
	return acked
}
