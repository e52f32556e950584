package raft

import "fmt"

// OnRcvMessage handles a message received from another peer. See HandleMessage.
func (p *Peer) OnRcvMessage(msg Message) error {
	_, err := p.HandleMessage(msg)
	return err
}

// HandleMessage processes one inbound message and returns p's Response.
//
// ReplicateOrHeartbeat is accepted regardless of its sender's term: the timeout flag is toggled, the entry is
// appended to the log, the sender becomes the current leader and p becomes a Follower.
//
// RequestVotes is term gated. A higher term is adopted and, unless p carries InvalidID, the vote is granted;
// otherwise it fails with ErrNoQuorum. A lower term fails with ErrInvalidTerm and leaves p unchanged. Term 0
// fails with ErrOffline. An equal term is accepted with no change. Grants and rejections are recorded in the log.
func (p *Peer) HandleMessage(msg Message) (Response, error) {
	switch msg.Type {
	case ReplicateOrHeartbeatMsg:
		return p.handleReplicateOrHeartbeat(msg)
	case RequestVotesMsg:
		return p.handleRequestVotes(msg)
	default:
		return Response{}, fmt.Errorf("%w: %v", ErrUnknownMessage, msg.Type)
	}
}

func (p *Peer) handleReplicateOrHeartbeat(msg Message) (Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.appendLog(msg.Entry); err != nil {
		return Response{Term: p.state.Term}, err
	}

	previous := p.state.Role
	p.state = StepDown(p.state, msg.From)

	if previous != Follower {
		publish(p.events, SteppedDown, LeaderPayload{Peer: p.id, From: previous, Leader: msg.From})
		p.logger.Infof("[PEER-%d] [TERM-%d] Stepped down from %v, peer %d is leader",
			p.id, p.state.Term, previous, msg.From)
	} else {
		p.logger.Debugf("[PEER-%d] [TERM-%d] Replicated entry from leader %d", p.id, p.state.Term, msg.From)
	}
	return Response{Term: p.state.Term}, nil
}

func (p *Peer) handleRequestVotes(msg Message) (Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	local := p.state.Term
	switch {
	case msg.Term > local:
		if p.id == InvalidID {
			if err := p.appendLog(LogEntry(fmt.Sprintf("[logterm: %d] rejected vote for %d at term %d",
				msg.Term, msg.From, msg.Term))); err != nil {
				return Response{Term: local}, err
			}
			p.adoptTermLocked(msg.Term)
			return p.rejectLocked(msg, ErrNoQuorum)
		}

		if err := p.appendLog(LogEntry(fmt.Sprintf("[logterm: %d] cast vote for %d at term %d",
			msg.Term, msg.From, msg.Term))); err != nil {
			return Response{Term: local}, err
		}
		p.adoptTermLocked(msg.Term)
		p.logger.Infof("[PEER-%d] [TERM-%d] Granted vote to %d", p.id, p.state.Term, msg.From)
		return Response{Term: p.state.Term, VoteGranted: true}, nil

	case msg.Term < local:
		if err := p.appendLog(LogEntry(fmt.Sprintf(
			"ignored a message with lower term from %d with term %d and sender term %d",
			msg.From, local, msg.Term))); err != nil {
			return Response{Term: local}, err
		}
		return p.rejectLocked(msg, ErrInvalidTerm)

	case msg.Term == 0:
		return p.rejectLocked(msg, ErrOffline)

	default:
		// Same term: nothing to do. Whether p already voted in this term is not tracked.
		return Response{Term: local}, nil
	}
}

// adoptTermLocked moves p to a higher term. Callers hold p.mu.
func (p *Peer) adoptTermLocked(term uint64) {
	previous := p.state.Term
	p.state = AdoptTerm(p.state, term)
	if p.state.Term != previous {
		publish(p.events, TermAdvanced, TermPayload{Peer: p.id, Previous: previous, Term: p.state.Term})
	}
}

// rejectLocked records a rejected vote request and returns err. Callers hold p.mu.
func (p *Peer) rejectLocked(msg Message, err error) (Response, error) {
	p.metrics.RecordRejection(ErrorKind(err))
	p.logger.Debugf("[PEER-%d] [TERM-%d] Rejected %v: %v", p.id, p.state.Term, msg, err)
	return Response{Term: p.state.Term}, err
}
