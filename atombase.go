// Package atombase implements the in-memory document engine: a flat
// four-entry-point FFI surface (initialize, acquire/release_insert_buffer,
// query_find, query_aggregate) over a registry of named collections.
package atombase

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
	"github.com/atombase/atombase/collection"
	"github.com/atombase/atombase/output"
	"github.com/atombase/atombase/query"
	"github.com/atombase/atombase/wire"
)

// Candle is the opaque client handle named in §6's entry-point signatures.
type Candle = uuid.UUID

// NewCandle mints a fresh client handle, the way friggdb/tempodb mint
// uuid.UUID block IDs.
func NewCandle() Candle { return uuid.New() }

// Engine is the process-wide singleton (§9 "a process-wide handle
// initialized exactly once at initialize()"); the collection registry is a
// map keyed by name, guarded by an RWMutex, with no limit on its size.
type Engine struct {
	cfg    Config
	logger log.Logger
	driver *query.Driver

	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

// New constructs a standalone Engine, independent of the package-level
// singleton. Tests and the CLI use this directly; Initialize wraps it for
// the FFI surface.
func New(cfg Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	driver := query.NewDriver(logger)
	driver.RingConfig = cfg.Ring
	driver.Pool = cfg.Pool

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		driver:      driver,
		collections: make(map[string]*collection.Collection),
	}
}

var (
	singletonMu sync.Mutex
	singleton   *Engine
)

// Initialize constructs the package-level singleton Engine exactly once,
// per §6's `initialize(max_concurrent_inserts, bin_max_elems, bin_max_bytes,
// max_bins, data_path)`. Re-entrant calls after the first return
// ErrAlreadyInitialized.
func Initialize(cfg Config, logger log.Logger) (*Engine, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		return nil, ErrAlreadyInitialized
	}
	singleton = New(cfg, logger)
	return singleton, nil
}

// Shutdown clears the package-level singleton so a later Initialize call
// can construct a fresh one. Not part of the FFI surface; exists for tests
// and process-level restarts.
func Shutdown() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = nil
}

func (e *Engine) getOrCreateCollection(name string) *collection.Collection {
	e.mu.RLock()
	c, ok := e.collections[name]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.collections[name]; ok {
		return c
	}
	c = collection.New(name, e.cfg.collectionConfig())
	e.collections[name] = c
	metricCollectionsGauge.Set(float64(len(e.collections)))
	return c
}

func (e *Engine) collection(name string) (*collection.Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[name]
	if !ok {
		return nil, ErrMissingCollection
	}
	return c, nil
}

// AcquireInsertBuffer implements `acquire_insert_buffer` (§6): reserves
// sizeBytes of room in collectionName's tail bin, creating the collection
// on first use.
func (e *Engine) AcquireInsertBuffer(candle Candle, collectionName string, sizeBytes int) ([]atom.Atom, bin.Pointer, error) {
	c := e.getOrCreateCollection(collectionName)
	view, ptr, err := c.AcquireInsertBuffer(sizeBytes)
	if err != nil {
		level.Error(e.logger).Log("msg", "acquire_insert_buffer failed", "collection", collectionName, "candle", candle, "err", err)
		return nil, bin.Pointer{}, err
	}
	return view, ptr, nil
}

// ReleaseInsertBuffer implements `release_insert_buffer` (§6): transitions
// the pointer's element Acquired -> Active. A pointer not owned by any bin
// in collectionName returns ErrReleaseBuffer; per §7 the buffer it named
// then leaks (documented, not retried).
func (e *Engine) ReleaseInsertBuffer(candle Candle, collectionName string, ptr bin.Pointer) (bool, error) {
	c, err := e.collection(collectionName)
	if err != nil {
		level.Error(e.logger).Log("msg", "release_insert_buffer: missing collection", "collection", collectionName, "candle", candle)
		return false, err
	}
	if ok := c.ReleaseInsertBuffer(ptr); !ok {
		metricReleaseErrorsTotal.WithLabelValues(collectionName).Inc()
		level.Error(e.logger).Log("msg", "release_insert_buffer failed", "collection", collectionName, "candle", candle)
		return false, ErrReleaseBuffer
	}
	metricInsertsTotal.WithLabelValues(collectionName).Inc()
	return true, nil
}

// QueryFind implements `query_find` (§6): decodes the selector/LFT/QP wire
// blobs, runs the parallel find query, and projects matches into outBuf.
// On MissingCollection or MalformedQuery it logs and returns 0 atoms, per
// §7's "Reported... as 0 atoms written" propagation policy.
func (e *Engine) QueryFind(candle Candle, collectionName string, selectorBytes, lftBytes, qpBytes []byte, outBuf []atom.Atom) (int, error) {
	c, err := e.collection(collectionName)
	if err != nil {
		metricQueriesTotal.WithLabelValues("find", "missing_collection").Inc()
		level.Error(e.logger).Log("msg", "query_find: missing collection", "collection", collectionName, "candle", candle)
		return 0, err
	}

	selector, err := wire.DecodeProjectionSet(selectorBytes)
	if err != nil {
		return e.malformedFind(collectionName, err)
	}
	lfts, err := wire.DecodeLFTs(lftBytes)
	if err != nil {
		return e.malformedFind(collectionName, err)
	}
	tree, err := wire.DecodeQPs(qpBytes)
	if err != nil {
		return e.malformedFind(collectionName, err)
	}

	res, err := e.driver.RunFind(c.Bins(), lfts, tree)
	if err != nil {
		metricQueriesTotal.WithLabelValues("find", "error").Inc()
		level.Error(e.logger).Log("msg", "query_find failed", "collection", collectionName, "candle", candle, "err", err)
		return 0, err
	}

	n, err := output.WriteFind(outBuf, res.Bins, res.Matches, selector)
	if err != nil {
		metricQueriesTotal.WithLabelValues("find", "overflow").Inc()
		level.Error(e.logger).Log("msg", "query_find: output overflow", "collection", collectionName, "candle", candle)
		return 0, err
	}

	metricQueriesTotal.WithLabelValues("find", "ok").Inc()
	return n, nil
}

func (e *Engine) malformedFind(collectionName string, err error) (int, error) {
	metricQueriesTotal.WithLabelValues("find", "malformed").Inc()
	level.Error(e.logger).Log("msg", "query_find: malformed query", "collection", collectionName, "err", err)
	return 0, err
}

// QueryAggregate implements `query_aggregate` (§6): decodes the group name
// and per-target accumulator list, runs the parallel aggregate query, and
// formats group rows into outBuf.
func (e *Engine) QueryAggregate(candle Candle, collectionName string, queryBytes []byte, outBuf []atom.Atom, sortFlag bool) (int, error) {
	c, err := e.collection(collectionName)
	if err != nil {
		metricQueriesTotal.WithLabelValues("aggregate", "missing_collection").Inc()
		level.Error(e.logger).Log("msg", "query_aggregate: missing collection", "collection", collectionName, "candle", candle)
		return 0, err
	}

	groupName, targets, err := wire.DecodeAggregateQuery(queryBytes)
	if err != nil {
		metricQueriesTotal.WithLabelValues("aggregate", "malformed").Inc()
		level.Error(e.logger).Log("msg", "query_aggregate: malformed query", "collection", collectionName, "err", err)
		return 0, err
	}

	res, err := e.driver.RunAggregate(c.Bins(), groupName, targets)
	if err != nil {
		metricQueriesTotal.WithLabelValues("aggregate", "error").Inc()
		level.Error(e.logger).Log("msg", "query_aggregate failed", "collection", collectionName, "candle", candle, "err", err)
		return 0, err
	}

	targetNames := make([]uint32, len(targets))
	for i, t := range targets {
		targetNames[i] = t.TargetName
	}

	n, err := output.WriteAggregate(outBuf, targetNames, res.Rows, sortFlag)
	if err != nil {
		metricQueriesTotal.WithLabelValues("aggregate", "overflow").Inc()
		level.Error(e.logger).Log("msg", "query_aggregate: output overflow", "collection", collectionName, "candle", candle)
		return 0, err
	}

	metricQueriesTotal.WithLabelValues("aggregate", "ok").Inc()
	return n, nil
}
