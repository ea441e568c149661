package query

import (
	"math"
	"sort"
	"time"

	"go.uber.org/atomic"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/slotring"
	"github.com/atombase/atombase/wire"
)

// Mode selects which stage2/stage3 handlers the Composer runs.
type Mode int

const (
	ModeFind Mode = iota
	ModeAggregate
)

// DefaultComposerSleep is composer_sleep from §4.5/§5: the pause after every
// drain pass that leaves bins unfinished.
const DefaultComposerSleep = time.Millisecond

// Composer is the single task that drains the SlotRing, accumulates
// per-bin intermediate state, and finalizes each bin once every predicate's
// chore for it has completed (§4.5).
type Composer struct {
	ring   *slotring.Ring
	cancel *Cancellation
	mode   Mode
	sleep  time.Duration

	binCount       int
	predicateCount int
	choresDone     []*atomic.Int64

	tree []wire.QP // find only

	// find state: bin -> elem -> set of matching predicate indexes
	findMatches map[int]map[int]map[int]bool
	findResults map[int][]int

	// aggregate state: per leaf/target -> group atom -> accumulated scalar
	aggOps       []atom.Operator
	aggPerTarget []map[atom.Atom]float64
	aggPivoted   bool
	aggFinal     map[atom.Atom][]float64

	remaining map[int]bool
}

func NewFindComposer(ring *slotring.Ring, cancel *Cancellation, binCount, predicateCount int, tree []wire.QP, choresDone []*atomic.Int64) *Composer {
	c := newComposer(ring, cancel, ModeFind, binCount, predicateCount, choresDone)
	c.tree = tree
	c.findMatches = make(map[int]map[int]map[int]bool, binCount)
	c.findResults = make(map[int][]int, binCount)
	return c
}

func NewAggregateComposer(ring *slotring.Ring, cancel *Cancellation, binCount int, ops []atom.Operator, choresDone []*atomic.Int64) *Composer {
	c := newComposer(ring, cancel, ModeAggregate, binCount, len(ops), choresDone)
	c.aggOps = ops
	c.aggPerTarget = make([]map[atom.Atom]float64, len(ops))
	for i := range c.aggPerTarget {
		c.aggPerTarget[i] = make(map[atom.Atom]float64)
	}
	c.aggFinal = make(map[atom.Atom][]float64)
	return c
}

func newComposer(ring *slotring.Ring, cancel *Cancellation, mode Mode, binCount, predicateCount int, choresDone []*atomic.Int64) *Composer {
	remaining := make(map[int]bool, binCount)
	for i := 0; i < binCount; i++ {
		remaining[i] = true
	}
	return &Composer{
		ring:           ring,
		cancel:         cancel,
		mode:           mode,
		sleep:          DefaultComposerSleep,
		binCount:       binCount,
		predicateCount: predicateCount,
		choresDone:     choresDone,
		remaining:      remaining,
	}
}

// Run drives the drain/finalize loop until every bin is finalized or
// cancellation fires.
func (c *Composer) Run() error {
	for {
		if err := c.drainOnce(); err != nil {
			c.cancel.Fire()
			return err
		}

		ready := c.collectReadyBins()
		if len(ready) > 0 {
			// a leaf promotes its last slot before its chore is counted, so
			// drain again for slots promoted after the pass above
			if err := c.drainOnce(); err != nil {
				c.cancel.Fire()
				return err
			}
		}
		for _, binIdx := range ready {
			if err := c.finalizeBin(binIdx); err != nil {
				c.cancel.Fire()
				return err
			}
		}

		if len(c.remaining) == 0 {
			if c.mode == ModeAggregate {
				c.pivotAggregate()
			}
			return nil
		}
		if c.cancel.Fired() {
			return nil
		}

		time.Sleep(c.sleep)
	}
}

func (c *Composer) drainOnce() error {
	for {
		consumed, ok := c.ring.ConsumeOne()
		if !ok {
			return nil
		}
		c.applyStage2(consumed)
		c.ring.ReleaseConsumed(consumed.Handle)
	}
}

func (c *Composer) applyStage2(consumed slotring.Consumed) {
	bin := consumed.Payload.BinIndex
	predicateIdx := consumed.Payload.PredicateIndex

	switch c.mode {
	case ModeFind:
		byElem, ok := c.findMatches[bin]
		if !ok {
			byElem = make(map[int]map[int]bool)
			c.findMatches[bin] = byElem
		}
		for i := 0; i < consumed.Count; i++ {
			elem := consumed.Records[i].ElemIndex
			set, ok := byElem[elem]
			if !ok {
				set = make(map[int]bool)
				byElem[elem] = set
			}
			set[predicateIdx] = true
		}
	case ModeAggregate:
		op := c.aggOps[predicateIdx]
		acc := c.aggPerTarget[predicateIdx]
		for i := 0; i < consumed.Count; i++ {
			rec := consumed.Records[i]
			v := math.Float64frombits(rec.Value)
			cur, has := acc[rec.GroupAtom]
			acc[rec.GroupAtom] = mergeAcc(op, cur, has, v)
		}
	}
}

func mergeAcc(op atom.Operator, cur float64, has bool, v float64) float64 {
	if !has {
		return v
	}
	switch op {
	case atom.OpSUM, atom.OpCOUNT:
		return cur + v
	case atom.OpMIN:
		return math.Min(cur, v)
	case atom.OpMAX:
		return math.Max(cur, v)
	default:
		return v
	}
}

func (c *Composer) collectReadyBins() []int {
	var ready []int
	for bin := range c.remaining {
		if c.choresDone[bin].Load() >= int64(c.predicateCount) {
			ready = append(ready, bin)
			delete(c.remaining, bin)
		}
	}
	sort.Ints(ready)
	return ready
}

func (c *Composer) finalizeBin(binIdx int) error {
	if c.mode == ModeFind {
		byElem := c.findMatches[binIdx]
		matched := make([]int, 0, len(byElem))
		vec := make([]bool, c.predicateCount)
		for elem, set := range byElem {
			for i := range vec {
				vec[i] = false
			}
			for p := range set {
				vec[p] = true
			}
			ok, err := EvaluateTree(c.tree, vec)
			if err != nil {
				return err
			}
			if ok {
				matched = append(matched, elem)
			}
		}
		sort.Ints(matched)
		c.findResults[binIdx] = matched
		delete(c.findMatches, binIdx)
	}
	// Aggregate has no per-bin finalization: accumulation is global across
	// bins (per_target is keyed by group atom, not by bin), so there is
	// nothing bin-scoped to pivot until every bin's chores are done.
	return nil
}

// pivotAggregate turns per_target[leaf][group] into group -> []scalar
// ordered by target/leaf index, run once after the last bin completes.
func (c *Composer) pivotAggregate() {
	if c.aggPivoted {
		return
	}
	c.aggPivoted = true

	for leafIdx, acc := range c.aggPerTarget {
		for group, scalar := range acc {
			row, ok := c.aggFinal[group]
			if !ok {
				row = make([]float64, len(c.aggPerTarget))
				c.aggFinal[group] = row
			}
			row[leafIdx] = scalar
		}
	}
}

// FindResults returns the matched element indexes per bin, valid after Run
// returns without error.
func (c *Composer) FindResults() map[int][]int { return c.findResults }

// AggregateResults returns group -> per-target scalar, valid after Run
// returns without error.
func (c *Composer) AggregateResults() map[atom.Atom][]float64 { return c.aggFinal }
