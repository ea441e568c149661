package bin

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/atomic"

	"github.com/atombase/atombase/atom"
)

// persistHeader mirrors spec §6's persisted bin header, a raw memcpy-style
// layout with no cross-platform endianness claim (native little-endian, as
// the teacher's own encoding/object.go does for its length-prefixed stream).
type persistHeader struct {
	TotalSize     uint64 // back-patched to the final file size
	BinIndex      uint32
	ByteSize      uint64
	ElemsUsed     uint32
	ElemsCapacity uint32
	NumActive     uint64
	NumDeleted    uint64
}

const persistHeaderSize = 8 + 4 + 8 + 4 + 4 + 8 + 8

// Serialize writes the bin in the persisted format of spec §6: header,
// element headers in insertion order, then the raw atom blob.
func (b *Bin) Serialize(w io.WriteSeeker) error {
	elemsUsed := b.ElemCount()
	byteSize := uint64(b.maxAtoms * 16)

	hdr := persistHeader{
		TotalSize:     0, // placeholder, back-patched below
		BinIndex:      uint32(b.id),
		ByteSize:      byteSize,
		ElemsUsed:     uint32(elemsUsed),
		ElemsCapacity: uint32(b.maxElems),
		NumActive:     b.numActive.Load(),
		NumDeleted:    b.numDeleted.Load(),
	}

	if err := writePersistHeader(w, hdr); err != nil {
		return err
	}

	for i := 0; i < elemsUsed; i++ {
		hb := b.headerBytes(i)
		if _, err := w.Write(hb[:]); err != nil {
			return err
		}
	}

	for i := range b.atoms {
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[0:8], b.atoms[i].Lo)
		binary.LittleEndian.PutUint64(buf[8:16], b.atoms[i].Hi)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}

	finalSize, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(finalSize)); err != nil {
		return err
	}
	_, err = w.Seek(finalSize, io.SeekStart)
	return err
}

func writePersistHeader(w io.Writer, h persistHeader) error {
	for _, v := range []interface{}{
		h.TotalSize, h.BinIndex, h.ByteSize, h.ElemsUsed, h.ElemsCapacity, h.NumActive, h.NumDeleted,
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readPersistHeader(r io.Reader) (persistHeader, error) {
	var h persistHeader
	fields := []interface{}{
		&h.TotalSize, &h.BinIndex, &h.ByteSize, &h.ElemsUsed, &h.ElemsCapacity, &h.NumActive, &h.NumDeleted,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Deserialize rebuilds a Bin from the persisted format written by Serialize.
// Byte-for-byte round trip over raw atoms, element headers, and the active
// / deleted counters is required by spec §8 property 5.
func Deserialize(r io.Reader) (*Bin, error) {
	hdr, err := readPersistHeader(r)
	if err != nil {
		return nil, err
	}

	maxAtoms := int(hdr.ByteSize / 16)
	b := &Bin{
		id:           uint64(hdr.BinIndex),
		atoms:        make([]atom.Atom, maxAtoms),
		headers:      make([]atomic.Uint64, hdr.ElemsCapacity),
		maxElems:     int(hdr.ElemsCapacity),
		maxAtoms:     int64(maxAtoms),
	}
	b.numActive.Store(hdr.NumActive)
	b.numDeleted.Store(hdr.NumDeleted)
	b.nextFreeElem.Store(int64(hdr.ElemsUsed))

	for i := 0; i < int(hdr.ElemsUsed); i++ {
		var raw uint64
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, err
		}
		b.headers[i].Store(raw)
		if h := elemHeader(raw); h.published() {
			top := int64(h.offset() + h.length())
			if top > b.activeAtoms.Load() {
				b.activeAtoms.Store(top)
			}
		}
	}

	for i := 0; i < maxAtoms; i++ {
		var lo, hi uint64
		if err := binary.Read(r, binary.LittleEndian, &lo); err != nil {
			return nil, fmt.Errorf("bin: deserialize: reading atom %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &hi); err != nil {
			return nil, fmt.Errorf("bin: deserialize: reading atom %d: %w", i, err)
		}
		b.atoms[i] = atom.Atom{Lo: lo, Hi: hi}
	}

	return b, nil
}
