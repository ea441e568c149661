// Package bin implements the fixed-capacity, append-only shard that backs a
// Collection: a raw atom arena plus an element-header array supporting
// lock-free concurrent insert and concurrent read-only scan (spec §3, §4.2).
package bin

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"

	"github.com/atombase/atombase/atom"
)

// ErrBinFull is returned by Acquire when the bin cannot hold the requested
// element (recoverable: the caller grows the collection and retries).
var ErrBinFull = fmt.Errorf("bin: full")

// ErrRelease is returned by Release when a pointer does not identify the
// start of a published element header.
type ErrRelease struct {
	Offset  uint32
	ElemIdx int
}

func (e *ErrRelease) Error() string {
	return fmt.Sprintf("bin: release: no element header starts at offset %d (searched near index %d)", e.Offset, e.ElemIdx)
}

// Pointer identifies a buffer previously returned by Acquire. It is opaque
// to callers outside this package but cheap to copy and compare.
type Pointer struct {
	BinID   uint64
	Offset  uint32
	Length  uint32
	ElemIdx int

	issuer *Bin // bin IDs repeat across collections, so Contains checks this too
}

// Bin is a fixed-capacity append-only shard: next_free_elem_index is the
// only piece of mutable shared state producers contend on; element headers
// are published monotonically and atoms, once written, never move (§5).
type Bin struct {
	id uint64

	atoms   []atom.Atom // fixed capacity arena, never reallocated
	headers []atomic.Uint64

	nextFreeElem atomic.Int64 // fetch-add reservation counter
	activeAtoms  atomic.Int64 // atoms consumed so far (reservation high-watermark)

	numActive  atomic.Uint64
	numDeleted atomic.Uint64

	maxElems int
	maxAtoms int64
}

// Config sizes a bin: byte capacity of its atom arena and maximum number of
// elements (spec §3 "configured byte size"/"configured maximum count").
type Config struct {
	MaxAtomBytes int
	MaxElems     int
}

func New(id uint64, cfg Config) *Bin {
	atomSize := 16
	maxAtoms := cfg.MaxAtomBytes / atomSize
	return &Bin{
		id:           id,
		atoms:        make([]atom.Atom, maxAtoms),
		headers:      make([]atomic.Uint64, cfg.MaxElems),
		maxElems:     cfg.MaxElems,
		maxAtoms:     int64(maxAtoms),
	}
}

func (b *Bin) ID() uint64 { return b.id }

// Contains reports whether p was issued by this bin (§8 property 2).
func (b *Bin) Contains(p Pointer) bool { return p.BinID == b.id && p.issuer == b }

func atomsFor(sizeBytes int) uint32 {
	n := (sizeBytes + 15) / 16
	if n < 1 {
		n = 1
	}
	return uint32(n)
}

// publishWait is the spin-then-bounded-sleep backoff used while waiting for
// a predecessor element's header to publish (§4.2, §9).
func newPublishWait() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Microsecond
	b.MaxInterval = 2 * time.Millisecond
	b.MaxElapsedTime = 50 * time.Millisecond
	b.Multiplier = 1.5
	return b
}

// Acquire reserves an element slot of length sizeBytes (rounded up to a
// whole number of atoms), returning a mutable view into the arena and a
// Pointer identifying it for Release. Multi-producer safe, lock-free.
func (b *Bin) Acquire(sizeBytes int) ([]atom.Atom, Pointer, error) {
	length := atomsFor(sizeBytes)

	idx64 := b.nextFreeElem.Inc() - 1
	if idx64 >= int64(b.maxElems) {
		b.nextFreeElem.Dec()
		return nil, Pointer{}, ErrBinFull
	}
	idx := int(idx64)

	var offset uint32
	if idx == 0 {
		offset = 0
	} else {
		pred := &b.headers[idx-1]
		wait := newPublishWait()
		for {
			raw := pred.Load()
			if raw != 0 {
				h := elemHeader(raw)
				offset = h.offset() + h.length()
				break
			}
			d := wait.NextBackOff()
			if d == backoff.Stop {
				// predecessor never published; treat the slot as
				// unusable and roll back our own reservation.
				b.nextFreeElem.Dec()
				return nil, Pointer{}, ErrBinFull
			}
			time.Sleep(d)
		}
	}

	newOffset := int64(offset) + int64(length)
	if newOffset > b.maxAtoms {
		b.nextFreeElem.Dec()
		return nil, Pointer{}, ErrBinFull
	}

	b.headers[idx].Store(uint64(packHeader(offset, length, StatusAcquired)))
	b.activeAtoms.Store(newOffset)

	view := b.atoms[offset : offset+length]
	return view, Pointer{BinID: b.id, Offset: offset, Length: length, ElemIdx: idx, issuer: b}, nil
}

// Release transitions the element identified by p from Acquired to Active,
// locating it by binary search on the published header prefix ordered by
// offset (§4.2).
func (b *Bin) Release(p Pointer) error {
	if !b.Contains(p) {
		return &ErrRelease{Offset: p.Offset, ElemIdx: -1}
	}

	n := int(b.nextFreeElem.Load())
	if n > b.maxElems {
		n = b.maxElems
	}

	i := sort.Search(n, func(i int) bool {
		h := elemHeader(b.headers[i].Load())
		if !h.published() {
			// an unpublished gap reports "at or past the target"; a
			// search that stops on one fails the published check below
			// instead of matching it (§9 OQ2).
			return true
		}
		return h.offset() >= p.Offset
	})

	if i >= n {
		return &ErrRelease{Offset: p.Offset, ElemIdx: i}
	}
	h := elemHeader(b.headers[i].Load())
	if !h.published() || h.offset() != p.Offset {
		return &ErrRelease{Offset: p.Offset, ElemIdx: i}
	}

	b.headers[i].Store(uint64(packHeader(h.offset(), h.length(), StatusActive)))
	b.numActive.Inc()
	return nil
}

// DisableElement marks element i Inactive; readers skip it on their next
// observation. No compaction is performed.
func (b *Bin) DisableElement(i int) {
	if i < 0 || i >= len(b.headers) {
		return
	}
	h := elemHeader(b.headers[i].Load())
	if !h.published() || h.status() != StatusActive {
		return
	}
	b.headers[i].Store(uint64(packHeader(h.offset(), h.length(), StatusInactive)))
	b.numDeleted.Inc()
}

// ElemCount returns a snapshot of the number of published element headers.
func (b *Bin) ElemCount() int {
	n := int(b.nextFreeElem.Load())
	if n > b.maxElems {
		n = b.maxElems
	}
	return n
}

// Range returns the atom slice [begin,end) for a published, Active element.
// ok is false if the element is absent or not Active.
func (b *Bin) Range(i int) (begin, end uint32, ok bool) {
	if i < 0 || i >= len(b.headers) {
		return 0, 0, false
	}
	h := elemHeader(b.headers[i].Load())
	if !h.published() || h.status() != StatusActive {
		return 0, 0, false
	}
	return h.offset(), h.offset() + h.length(), true
}

// Atoms exposes the read-only backing arena for range [begin,end).
func (b *Bin) Atoms(begin, end uint32) []atom.Atom { return b.atoms[begin:end] }

// Visitor is called once per Active element with its index and atom range.
type Visitor func(elemIndex int, atoms []atom.Atom)

// Scan iterates headers in insertion order over a stable snapshot of
// next_free_elem_index, skipping any element whose status is not Active.
func (b *Bin) Scan(visit Visitor) {
	n := b.ElemCount()
	for i := 0; i < n; i++ {
		begin, end, ok := b.Range(i)
		if !ok {
			continue
		}
		visit(i, b.atoms[begin:end])
	}
}

// Full reports whether the bin has no room left for another minimal
// element. Collection does not call it: it grows on ErrBinFull from Acquire.
func (b *Bin) Full() bool {
	return int(b.nextFreeElem.Load()) >= b.maxElems || b.activeAtoms.Load() >= b.maxAtoms
}

// headerBytes/atomBytes support the persisted bin codec (persist.go).
func (b *Bin) headerBytes(i int) [8]byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], b.headers[i].Load())
	return out
}
