package query

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
	"github.com/atombase/atombase/slotring"
	"github.com/atombase/atombase/wire"
)

// PoolConfig sizes the chore worker pool, reusing the shape of the
// teacher's friggdb/pool.Config{MaxWorkers, QueueDepth}.
type PoolConfig struct {
	MaxWorkers int
	QueueDepth int
}

// DefaultPoolConfig mirrors pool.defaultConfig's 30 workers / 10000 queue
// depth, scaled down by workerCount's NumCPU-based cap at run time.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxWorkers: 30, QueueDepth: 10000}
}

// Driver runs one query end to end: build the chore queue, spawn the
// Composer, run the worker pool, join both, and hand back results (§4.7).
type Driver struct {
	Logger      log.Logger
	RingConfig  slotring.Config
	Pool        PoolConfig
	WorkerRatio int // workers per CPU*2, default 3 (i.e. 1.5x NumCPU)
}

// NewDriver returns a Driver with the teacher's default ring/pool sizing and
// a nop logger; callers typically override Logger with a context-scoped one.
func NewDriver(logger log.Logger) *Driver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Driver{Logger: logger, RingConfig: slotring.DefaultConfig(), Pool: DefaultPoolConfig(), WorkerRatio: 3}
}

func newChoreCounters(n int) []*atomic.Int64 {
	out := make([]*atomic.Int64, n)
	for i := range out {
		out[i] = atomic.NewInt64(0)
	}
	return out
}

func (d *Driver) workerCount(choreCount int) int {
	n := runtime.NumCPU() * d.WorkerRatio / 2
	if n < 1 {
		n = 1
	}
	if d.Pool.MaxWorkers > 0 && n > d.Pool.MaxWorkers {
		n = d.Pool.MaxWorkers
	}
	if choreCount > 0 && choreCount < n {
		n = choreCount
	}
	return n
}

// choreQueueCapacity bounds the chore channel's buffer at Pool.QueueDepth
// (§9 "a bounded blocking queue is sufficient"), falling back to the exact
// chore count when no depth is configured.
func (d *Driver) choreQueueCapacity(total int) int {
	if d.Pool.QueueDepth > 0 && d.Pool.QueueDepth < total {
		return d.Pool.QueueDepth
	}
	return total
}


// FindResult is the Driver's find-query output: matched element indexes per
// bin index, ready for the output formatter.
type FindResult struct {
	Matches map[int][]int
	Bins    []*bin.Bin
}

// RunFind applies one LFT per bin as a chore, reduces per-element predicate
// hits through the postfix tree, and returns matched elements per bin.
func (d *Driver) RunFind(bins []*bin.Bin, lfts []wire.LFT, tree []wire.QP) (*FindResult, error) {
	start := time.Now()
	defer func() { metricQueryDuration.WithLabelValues("find").Observe(time.Since(start).Seconds()) }()

	cancel := NewCancellation()
	ring := slotring.New(d.RingConfig)

	binCount := len(bins)
	predicateCount := len(lfts)
	choresDone := newChoreCounters(binCount)

	composer := NewFindComposer(ring, cancel, binCount, predicateCount, tree, choresDone)

	chores := make([]Chore, 0, binCount*predicateCount)
	for bi := range bins {
		for pi := range lfts {
			chores = append(chores, Chore{PredicateIndex: pi, BinIndex: bi})
		}
	}

	leaves := make([]*FindLeaf, len(lfts))
	for i, l := range lfts {
		if !atom.Implemented(l.Op) {
			return nil, fmt.Errorf("query: operator %d not implemented", l.Op)
		}
		leaves[i] = &FindLeaf{PredicateIndex: i, Op: l.Op, Filter: l.Filter.RemoveDoc()}
	}

	runErr := d.run(bins, chores, cancel, ring, choresDone, func(c Chore) error {
		return leaves[c.PredicateIndex].Apply(bins[c.BinIndex], ring, cancel)
	}, composer)
	if runErr != nil {
		return nil, runErr
	}

	return &FindResult{Matches: composer.FindResults(), Bins: bins}, nil
}

// AggregateResult is the Driver's aggregate-query output: per-group scalar
// rows, ordered the same as the targets slice passed to RunAggregate.
type AggregateResult struct {
	GroupName uint32
	Targets   []wire.Aggr1
	Rows      map[atom.Atom][]float64
}

// RunAggregate applies one Aggr1 target per bin as a chore, accumulating a
// scalar per (target, group) pair and pivoting once into per-group rows.
func (d *Driver) RunAggregate(bins []*bin.Bin, groupName uint32, targets []wire.Aggr1) (*AggregateResult, error) {
	start := time.Now()
	defer func() {
		metricQueryDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())
	}()

	cancel := NewCancellation()
	ring := slotring.New(d.RingConfig)

	binCount := len(bins)
	ops := make([]atom.Operator, len(targets))
	for i, t := range targets {
		switch t.Op {
		case atom.OpSUM, atom.OpCOUNT, atom.OpMIN, atom.OpMAX:
		default:
			return nil, fmt.Errorf("query: aggregate operator %d not implemented", t.Op)
		}
		ops[i] = t.Op
	}
	choresDone := newChoreCounters(binCount)

	composer := NewAggregateComposer(ring, cancel, binCount, ops, choresDone)

	chores := make([]Chore, 0, binCount*len(targets))
	for bi := range bins {
		for ti := range targets {
			chores = append(chores, Chore{PredicateIndex: ti, BinIndex: bi})
		}
	}

	leaves := make([]*AggregateLeaf, len(targets))
	for i, t := range targets {
		leaves[i] = &AggregateLeaf{LeafIndex: i, GroupName: groupName, ValueName: t.AccName, Op: t.Op}
	}

	runErr := d.run(bins, chores, cancel, ring, choresDone, func(c Chore) error {
		return leaves[c.PredicateIndex].Apply(bins[c.BinIndex], ring, cancel)
	}, composer)
	if runErr != nil {
		return nil, runErr
	}

	return &AggregateResult{GroupName: groupName, Targets: targets, Rows: composer.AggregateResults()}, nil
}

// run spawns the Composer, feeds the bounded chore queue from a background
// goroutine, drains it across a worker pool, and joins both per §4.7 ("join
// workers, then join composer").
func (d *Driver) run(bins []*bin.Bin, pending []Chore, cancel *Cancellation, ring *slotring.Ring, choresDone []*atomic.Int64, apply func(Chore) error, composer *Composer) error {
	n := d.workerCount(len(pending))
	level.Debug(d.Logger).Log("msg", "query start", "bins", len(bins), "workers", n, "chores", len(pending))

	chores := make(chan Chore, d.choreQueueCapacity(len(pending)))
	go func() {
		for _, c := range pending {
			select {
			case chores <- c:
			case <-cancel.Done():
				close(chores)
				return
			}
		}
		close(chores)
	}()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-cancel.Done():
					return
				case c, ok := <-chores:
					if !ok {
						return
					}
					if err := apply(c); err != nil {
						if err == slotring.ErrFull {
							metricSlotRingFull.Inc()
						}
						level.Error(d.Logger).Log("msg", "chore failed", "bin", c.BinIndex, "predicate", c.PredicateIndex, "err", err)
						recordErr(err)
						cancel.Fire()
						return
					}
					choresDone[c.BinIndex].Inc()
					metricChoresRun.Inc()
				}
			}
		}()
	}

	composerErr := make(chan error, 1)
	go func() { composerErr <- composer.Run() }()

	wg.Wait()
	err := <-composerErr

	if cancel.Fired() {
		metricCancellations.Inc()
		level.Warn(d.Logger).Log("msg", "query cancelled", "fire_count", cancel.FireCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	return err
}
