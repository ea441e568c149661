package query

import (
	"math"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
	"github.com/atombase/atombase/slotring"
)

// LeafFilter scans one bin and emits matches into the SlotRing (§4.4). Both
// variants share this capability.
type LeafFilter interface {
	Apply(b *bin.Bin, ring *slotring.Ring, cancel *Cancellation) error
}

// producerState tracks the single producer slot a LeafFilter holds while
// walking a bin, reserving a fresh one whenever the current one fills.
type producerState struct {
	ring    *slotring.Ring
	handle  slotring.Handle
	buf     []slotring.Record
	count   int
	payload slotring.Payload
}

func newProducer(ring *slotring.Ring, payload slotring.Payload) (*producerState, error) {
	h, buf, err := ring.Reserve()
	if err != nil {
		return nil, err
	}
	return &producerState{ring: ring, handle: h, buf: buf, payload: payload}, nil
}

func (p *producerState) emit(r slotring.Record) error {
	p.buf[p.count] = r
	p.count++
	if p.count == len(p.buf) {
		if err := p.ring.Promote(p.handle, p.count, p.payload); err != nil {
			return err
		}
		h, buf, err := p.ring.Reserve()
		if err != nil {
			return err
		}
		p.handle, p.buf, p.count = h, buf, 0
	}
	return nil
}

func (p *producerState) finish() error {
	if p.count == 0 {
		p.ring.ReleaseProducer(p.handle)
		return nil
	}
	return p.ring.Promote(p.handle, p.count, p.payload)
}

// FindLeaf evaluates one comparison predicate against every active element
// of a bin, emitting the element index on first match (§4.4 "Find leaf").
type FindLeaf struct {
	PredicateIndex int
	Op             atom.Operator
	Filter         atom.Atom // already RemoveDoc'd so depth is ignored
}

func (f *FindLeaf) Apply(b *bin.Bin, ring *slotring.Ring, cancel *Cancellation) error {
	p, err := newProducer(ring, slotring.Payload{PredicateIndex: f.PredicateIndex, BinIndex: int(b.ID())})
	if err != nil {
		return err
	}

	var scanErr error
	b.Scan(func(elemIndex int, atoms []atom.Atom) {
		if scanErr != nil || cancel.Fired() {
			return
		}
		for _, a := range atoms {
			if a.Invalid() {
				break
			}
			if atom.Eval(f.Op, f.Filter, a) {
				if err := p.emit(slotring.Record{ElemIndex: elemIndex}); err != nil {
					scanErr = err
				}
				break
			}
		}
	})
	if scanErr != nil {
		return scanErr
	}
	return p.finish()
}

// AggregateLeaf records at most one group atom and one value contribution
// per active element, matching atoms by name (§4.4 "Aggregate leaf"). The
// operator set implemented here follows §6's wire enumeration (SUM, COUNT,
// MIN, MAX) rather than §4.4's narrower prose list of "SUM or COUNT", since
// §4.5's composer merge step and §6's operator table both name all four.
type AggregateLeaf struct {
	LeafIndex int
	GroupName uint32
	ValueName uint32
	Op        atom.Operator
}

func contribution(op atom.Operator, value atom.Atom) float64 {
	switch op {
	case atom.OpCOUNT:
		return 1
	default:
		if atom.IsFloat(value.TypeTag()) {
			return value.ValueFloat()
		}
		return float64(value.ValueInt())
	}
}

func (f *AggregateLeaf) Apply(b *bin.Bin, ring *slotring.Ring, cancel *Cancellation) error {
	p, err := newProducer(ring, slotring.Payload{PredicateIndex: f.LeafIndex, BinIndex: int(b.ID())})
	if err != nil {
		return err
	}

	var scanErr error
	b.Scan(func(elemIndex int, atoms []atom.Atom) {
		if scanErr != nil || cancel.Fired() {
			return
		}
		var group, value atom.Atom
		haveGroup, haveValue := false, false
		for _, a := range atoms {
			if a.Invalid() {
				break
			}
			if !haveGroup && a.Name() == f.GroupName {
				group, haveGroup = a, true
			}
			if !haveValue && a.Name() == f.ValueName {
				value, haveValue = a, true
			}
			if haveGroup && haveValue {
				break
			}
		}
		if !haveGroup || !haveValue {
			return
		}
		c := contribution(f.Op, value)
		if err := p.emit(slotring.Record{GroupAtom: group, Value: math.Float64bits(c)}); err != nil {
			scanErr = err
		}
	})
	if scanErr != nil {
		return scanErr
	}
	return p.finish()
}
