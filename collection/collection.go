// Package collection implements the ordered, growable sequence of bins that
// share a name and sizing configuration (spec §3 "Collection").
package collection

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
)

// Config carries the sizing knobs a Collection hands to every Bin it grows.
type Config struct {
	BinMaxElems int
	BinMaxBytes int
	MaxBins     int
}

// Collection is an ordered sequence of bins; it exclusively owns its bins
// and is their sole mutator for growth. Appends always target the tail bin.
type Collection struct {
	name string
	cfg  Config

	mu   sync.RWMutex
	bins []*bin.Bin

	nextBinID atomic.Uint64
	growing   atomic.Bool
}

func New(name string, cfg Config) *Collection {
	c := &Collection{name: name, cfg: cfg}
	c.bins = append(c.bins, c.newBin())
	return c
}

// Restore rebuilds a Collection from previously-deserialized bins (§8 S6
// "persistence round-trip"), in the order they should be queried. nextBinID
// continues from one past the highest restored bin ID so any subsequent
// growth doesn't collide with a restored bin's ID.
func Restore(name string, cfg Config, bins []*bin.Bin) *Collection {
	c := &Collection{name: name, cfg: cfg, bins: bins}
	var maxID uint64
	for _, b := range bins {
		if b.ID() >= maxID {
			maxID = b.ID() + 1
		}
	}
	c.nextBinID.Store(maxID)
	return c
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) newBin() *bin.Bin {
	id := c.nextBinID.Inc() - 1
	return bin.New(id, bin.Config{MaxAtomBytes: c.cfg.BinMaxBytes, MaxElems: c.cfg.BinMaxElems})
}

// Bins returns a stable snapshot of the current bin slice. The slice only
// ever grows, so a snapshot taken under the lock stays valid for a query's
// whole lifetime even while other appends continue.
func (c *Collection) Bins() []*bin.Bin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*bin.Bin, len(c.bins))
	copy(out, c.bins)
	return out
}

func (c *Collection) BinCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bins)
}

func (c *Collection) tail() *bin.Bin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bins[len(c.bins)-1]
}

// ErrCollectionFull is returned when MaxBins is configured and reached.
type ErrCollectionFull struct{ Name string }

func (e *ErrCollectionFull) Error() string { return "collection: " + e.Name + ": max bins reached" }

// AcquireInsertBuffer reserves room for a new element of sizeBytes in the
// tail bin, growing the collection on BinFull, and returns a writable atom
// view plus the pointer needed to release it.
func (c *Collection) AcquireInsertBuffer(sizeBytes int) ([]atom.Atom, bin.Pointer, error) {
	b := growBackoff()
	for {
		tail := c.tail()
		view, p, err := tail.Acquire(sizeBytes)
		if err == nil {
			return view, p, nil
		}
		if err != bin.ErrBinFull {
			return nil, bin.Pointer{}, err
		}

		if c.cfg.MaxBins > 0 && c.BinCount() >= c.cfg.MaxBins && tail == c.tail() {
			return nil, bin.Pointer{}, &ErrCollectionFull{Name: c.name}
		}

		c.grow()

		d := b.NextBackOff()
		if d == backoff.Stop {
			return nil, bin.Pointer{}, &ErrCollectionFull{Name: c.name}
		}
		time.Sleep(d)
	}
}

// ReleaseInsertBuffer releases p in whichever bin it belongs to, or
// reports failure if no bin in this collection contains it.
func (c *Collection) ReleaseInsertBuffer(p bin.Pointer) bool {
	for _, b := range c.Bins() {
		if b.Contains(p) {
			return b.Release(p) == nil
		}
	}
	return false
}

// grow appends a new bin; only the CAS winner performs the append, everyone
// else observes the new tail on their next tail() call.
func (c *Collection) grow() {
	if !c.growing.CAS(false, true) {
		return
	}
	defer c.growing.Store(false)

	c.mu.Lock()
	if c.cfg.MaxBins == 0 || len(c.bins) < c.cfg.MaxBins {
		c.bins = append(c.bins, c.newBin())
	}
	c.mu.Unlock()
}

// growBackoff is the bounded spin-sleep losers of the growing CAS use while
// waiting for the winner to publish the new tail bin (§4.2 "Lifetime").
func growBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 200 * time.Millisecond
	return b
}
