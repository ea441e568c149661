// Package slotring implements the bounded multi-producer/single-consumer
// ring of fixed-capacity match buffers that carries LeafFilter output to the
// Composer (spec §3 "SlotRing", §4.3).
package slotring

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"

	"github.com/atombase/atombase/atom"
)

// ErrFull is returned by Reserve when no slot becomes free within the
// bounded retry budget — a fatal condition for the producer (§4.3).
var ErrFull = errors.New("slotring: full")

// owner states, transitioning Free -> ProducerHeld -> Promoted ->
// ConsumerHeld -> Free.
const (
	stateFree uint32 = iota
	stateProducerHeld
	statePromoted
	stateConsumerHeld
)

// Record is one emitted match: for a Find leaf only ElemIndex is set; for
// an Aggregate leaf GroupAtom and Value carry the (group, contribution)
// pair (§4.4).
type Record struct {
	ElemIndex int
	GroupAtom atom.Atom
	Value     uint64
}

// Payload identifies which chore produced a promoted slot's contents.
type Payload struct {
	PredicateIndex int
	BinIndex       int
}

type slot struct {
	state   atomic.Uint32
	records []Record
	count   int
	payload Payload
}

// Config sizes the ring: number of slots and the fixed record capacity of
// each (spec default: 10 slots).
type Config struct {
	NumSlots      int
	SlotCapacity  int
	ReserveWait   time.Duration // default 1ms, per §4.3
	ReserveTries  int           // default 1000, per §4.3
}

func DefaultConfig() Config {
	return Config{NumSlots: 10, SlotCapacity: 256, ReserveWait: time.Millisecond, ReserveTries: 1000}
}

// Ring is the SlotRing: a single instance per query serves all leaf
// producers and the sole composer.
type Ring struct {
	slots    []slot
	promoted atomic.Int64
	cfg      Config
}

func New(cfg Config) *Ring {
	if cfg.NumSlots <= 0 {
		cfg.NumSlots = 10
	}
	if cfg.SlotCapacity <= 0 {
		cfg.SlotCapacity = 256
	}
	if cfg.ReserveWait <= 0 {
		cfg.ReserveWait = time.Millisecond
	}
	if cfg.ReserveTries <= 0 {
		cfg.ReserveTries = 1000
	}

	r := &Ring{slots: make([]slot, cfg.NumSlots), cfg: cfg}
	for i := range r.slots {
		r.slots[i].records = make([]Record, cfg.SlotCapacity)
	}
	return r
}

// Handle identifies a slot reserved by, or promoted to, the caller.
type Handle struct{ idx int }

// Capacity returns the fixed record capacity of every slot.
func (r *Ring) Capacity() int { return r.cfg.SlotCapacity }

// Reserve scans for a Free slot and CASes it to ProducerHeld, retrying with
// a bounded 1ms-interval backoff before signalling ErrFull (§4.3).
func (r *Ring) Reserve() (Handle, []Record, error) {
	try := func() (Handle, []Record, error) {
		for i := range r.slots {
			if r.slots[i].state.CAS(stateFree, stateProducerHeld) {
				r.slots[i].count = 0
				return Handle{idx: i}, r.slots[i].records, nil
			}
		}
		return Handle{}, nil, ErrFull
	}

	h, buf, err := try()
	if err == nil {
		return h, buf, nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.ReserveWait), uint64(r.cfg.ReserveTries))
	for {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return Handle{}, nil, ErrFull
		}
		time.Sleep(d)
		if h, buf, err = try(); err == nil {
			return h, buf, nil
		}
	}
}

// Promote publishes count records and the chore payload, transitioning the
// slot ProducerHeld -> Promoted.
func (r *Ring) Promote(h Handle, count int, payload Payload) error {
	s := &r.slots[h.idx]
	if !s.state.CAS(stateProducerHeld, statePromoted) {
		return errors.New("slotring: promote: slot not held by this handle")
	}
	s.count = count
	s.payload = payload
	r.promoted.Inc()
	return nil
}

// Consumed is one drained slot: its records (only the first Count are
// valid), the payload that produced them, and the handle to release.
type Consumed struct {
	Handle  Handle
	Records []Record
	Count   int
	Payload Payload
}

// ConsumeOne drains one Promoted slot, or reports none available. Single
// consumer only — no locking beyond the per-slot state CAS.
func (r *Ring) ConsumeOne() (Consumed, bool) {
	if r.promoted.Load() <= 0 {
		return Consumed{}, false
	}
	for i := range r.slots {
		if r.slots[i].state.CAS(statePromoted, stateConsumerHeld) {
			r.promoted.Dec()
			s := &r.slots[i]
			return Consumed{Handle: Handle{idx: i}, Records: s.records, Count: s.count, Payload: s.payload}, true
		}
	}
	return Consumed{}, false
}

// ReleaseConsumed transitions ConsumerHeld -> Free.
func (r *Ring) ReleaseConsumed(h Handle) {
	r.slots[h.idx].state.Store(stateFree)
}

// ReleaseProducer transitions a held-but-never-promoted slot (ProducerHeld)
// back to Free, used when a LeafFilter finishes with nothing left to emit.
func (r *Ring) ReleaseProducer(h Handle) {
	r.slots[h.idx].state.Store(stateFree)
}
