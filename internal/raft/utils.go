package raft

import (
	"math/rand"
	"time"
)

const (
	// MinElectionTimeout and MaxElectionTimeout bound the randomized election timeout, following the 150-300ms
	// recommendation at the end of Section 9.3 from the [Raft paper](https://raft.github.io/raft.pdf).
	MinElectionTimeout = 150 * time.Millisecond
	MaxElectionTimeout = 300 * time.Millisecond
)

// ElectionTimeout picks a random duration in [min, max]. If no communications are received from a leader over
// this period, the peer should call OnTimeout. Randomizing it per peer makes split votes unlikely.
func ElectionTimeout(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	// We add 1 to make the range inclusive, and min to shift it, as rand.Int63n() could return 0
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
