// Package confirmations tracks outstanding "confirm re-vote" requests of a
// single channel. State is in-process only.
package confirmations

import (
	"context"
	"sync"
	"time"
)

const DefaultTimeout = 60 * time.Second

type Outcome int

const (
	OutcomeConfirmed Outcome = iota + 1
	OutcomeDeclined
	OutcomeTimedOut
	// OutcomeSuperseded ends a request replaced by a newer one for the same
	// voter.
	OutcomeSuperseded
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeDeclined:
		return "declined"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Ticket is one registered request. Only the ticket currently stored for a
// voter can be answered.
type Ticket struct {
	voter      string
	answer     chan bool
	superseded chan struct{}
}

func (t *Ticket) Voter() string {
	return t.voter
}

type Coordinator struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[string]*Ticket
}

func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		timeout: timeout,
		pending: make(map[string]*Ticket),
	}
}

func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Register stores a new request for voter, replacing any outstanding one.
// The replaced request's waiter ends with OutcomeSuperseded.
func (c *Coordinator) Register(voter string) (*Ticket, bool) {
	ticket := &Ticket{
		voter:      voter,
		answer:     make(chan bool, 1),
		superseded: make(chan struct{}),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, replaced := c.pending[voter]
	if replaced {
		close(previous.superseded)
	}
	c.pending[voter] = ticket
	return ticket, replaced
}

// Resolve answers the outstanding request of voter. It returns false when
// there is nothing to confirm.
func (c *Coordinator) Resolve(voter string, confirmed bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticket, ok := c.pending[voter]
	if !ok {
		return false
	}
	delete(c.pending, voter)
	ticket.answer <- confirmed
	return true
}

// Await blocks until the ticket is answered, replaced, expired or ctx ends.
// The ticket is removed from the pending set on every path.
func (c *Coordinator) Await(ctx context.Context, ticket *Ticket) Outcome {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	defer c.release(ticket)

	select {
	case confirmed := <-ticket.answer:
		if confirmed {
			return OutcomeConfirmed
		}
		return OutcomeDeclined
	case <-ticket.superseded:
		return OutcomeSuperseded
	case <-timer.C:
		return OutcomeTimedOut
	case <-ctx.Done():
		return OutcomeCanceled
	}
}

func (c *Coordinator) Pending(voter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[voter]
	return ok
}

func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) release(ticket *Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.pending[ticket.voter]; ok && current == ticket {
		delete(c.pending, ticket.voter)
	}
}
