package wsapi

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// outcome is the single resolution of a pending completion: exactly one of
// result or err, written exactly once.
type outcome struct {
	result json.RawMessage
	err    error
}

// pending tracks one outstanding request until its reply, timeout, or
// connection failure.
type pending struct {
	id        uint64
	createdAt time.Time
	deadline  time.Time
	done      chan outcome // buffered, written at most once
}

// correlator multiplexes many concurrent logical calls over one physical
// connection. Removal from the pending map under the lock is what guarantees
// exactly-once resolution; the buffered channel means resolvers never block.
type correlator struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pending
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uint64]*pending)}
}

// register allocates the next id and records a pending completion with the
// given deadline. Completions may resolve out of submission order.
func (c *correlator) register(timeout time.Duration) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	p := &pending{
		id:        c.nextID,
		createdAt: time.Now(),
		deadline:  time.Now().Add(timeout),
		done:      make(chan outcome, 1),
	}
	c.pending[p.id] = p
	return p
}

// resolve completes the waiter for id and removes it. Resolving an unknown or
// already-resolved id is reported as false and never fatal.
func (c *correlator) resolve(id uint64, result json.RawMessage, err error) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.done <- outcome{result: result, err: err}
	return true
}

// abandon drops a waiter without resolving it (caller gave up, e.g. its context
// ended). A late reply for the id will then be discarded by resolve.
func (c *correlator) abandon(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failAll resolves every pending completion with err and empties the index.
// Used on connection loss and shutdown so callers are never left hanging.
func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	drained := make([]*pending, 0, len(c.pending))
	for id, p := range c.pending {
		drained = append(drained, p)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, p := range drained {
		p.done <- outcome{err: err}
	}
	return len(drained)
}

// expireOverdue resolves every completion past its deadline with err.
// The true outcome of the underlying request stays unknown until re-queried.
func (c *correlator) expireOverdue(now time.Time, err error) int {
	c.mu.Lock()
	var overdue []*pending
	for id, p := range c.pending {
		if now.After(p.deadline) {
			overdue = append(overdue, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range overdue {
		log.Printf("wsapi: request %d expired after %v", p.id, now.Sub(p.createdAt))
		p.done <- outcome{err: err}
	}
	return len(overdue)
}

// size reports the number of in-flight requests.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
