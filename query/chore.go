package query

import (
	"sync"

	"go.uber.org/atomic"
)

// Chore is one unit of work: one predicate (or aggregate leaf) applied to
// one bin (spec §3 "Chore").
type Chore struct {
	PredicateIndex int
	BinIndex       int
}

// Cancellation is the single cooperative stop signal shared by every worker
// and the composer (§5 "Cancellation & timeouts"). It is fired by any
// worker/composer error, including a SlotRing overflow. The Driver creates
// one per query and does not hand it to callers, so nothing outside the
// query can fire it.
type Cancellation struct {
	fired atomic.Bool
	done  chan struct{}
	once  sync.Once
	count atomic.Int64
}

func NewCancellation() *Cancellation {
	return &Cancellation{done: make(chan struct{})}
}

// Fire trips the token exactly once; subsequent calls are no-ops beyond the
// counter, which is an observation, not a gate.
func (c *Cancellation) Fire() {
	c.count.Inc()
	c.once.Do(func() {
		c.fired.Store(true)
		close(c.done)
	})
}

func (c *Cancellation) Fired() bool       { return c.fired.Load() }
func (c *Cancellation) Done() <-chan struct{} { return c.done }
func (c *Cancellation) FireCount() int64  { return c.count.Load() }
