// Package wire decodes the flat byte records that cross the FFI boundary
// (spec §6): LFT (leaf-filter-and-target) records, the postfix predicate
// tree, aggregate target descriptors, and a projection-set field list.
//
// All multi-byte integers are little-endian, matching the atom layout's own
// endianness requirement (§9) and the teacher's own `encoding/binary`
// marshal idiom (friggdb/record.go, friggdb/encoding/record.go).
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/atombase/atombase/atom"
)

// LFT is one (predicate-index, operator, filter-atom) entry. The wire
// struct is { idx: u32, op: u32, pad: u64, filter_atom: 16 bytes }; the
// u64 pad is C struct alignment padding ahead of the 16-byte-aligned atom,
// making the true record size 32 bytes — the "20 bytes" figure in spec §6
// prose undercounts its own field list and is treated as a typo.
type LFT struct {
	Index  uint32
	Op     atom.Operator
	Filter atom.Atom
}

const lftRecordSize = 4 + 4 + 8 + 16

// DecodeLFTs parses a flat array of LFT records.
func DecodeLFTs(b []byte) ([]LFT, error) {
	if len(b)%lftRecordSize != 0 {
		return nil, fmt.Errorf("wire: LFT blob length %d not a multiple of %d", len(b), lftRecordSize)
	}
	n := len(b) / lftRecordSize
	out := make([]LFT, n)
	for i := 0; i < n; i++ {
		rec := b[i*lftRecordSize : (i+1)*lftRecordSize]
		idx := binary.LittleEndian.Uint32(rec[0:4])
		op := binary.LittleEndian.Uint32(rec[4:8])
		// rec[8:16] is alignment padding, ignored.
		lo := binary.LittleEndian.Uint64(rec[16:24])
		hi := binary.LittleEndian.Uint64(rec[24:32])
		out[i] = LFT{Index: idx, Op: atom.Operator(op), Filter: atom.Atom{Lo: lo, Hi: hi}}
	}
	return out, nil
}

// QP is one node of the postfix predicate tree (§4.6, §6).
type QP struct {
	Command atom.Operator
	Kids    uint32
}

const qpRecordSize = 4 + 4

// DecodeQPs parses the bracketed Start/End sequence and returns the
// interior nodes with the sentinels stripped.
func DecodeQPs(b []byte) ([]QP, error) {
	if len(b)%qpRecordSize != 0 {
		return nil, fmt.Errorf("wire: QP blob length %d not a multiple of %d", len(b), qpRecordSize)
	}
	n := len(b) / qpRecordSize
	nodes := make([]QP, 0, n)
	for i := 0; i < n; i++ {
		rec := b[i*qpRecordSize : (i+1)*qpRecordSize]
		cmd := atom.Operator(binary.LittleEndian.Uint32(rec[0:4]))
		kids := binary.LittleEndian.Uint32(rec[4:8])
		if cmd == atom.OpStart || cmd == atom.OpEnd {
			continue
		}
		nodes = append(nodes, QP{Command: cmd, Kids: kids})
	}
	return nodes, nil
}

// Aggr1 names one aggregate target: the output field name, the source
// value-field name, and the accumulator operator (§6).
type Aggr1 struct {
	TargetName uint32
	AccName    uint32
	Op         atom.Operator
}

const aggr1RecordSize = 4 + 4 + 4

// DecodeAggregateQuery parses the aggregate-query blob: a 4-byte group name
// followed by an array of Aggr1 records.
func DecodeAggregateQuery(b []byte) (groupName uint32, targets []Aggr1, err error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("wire: aggregate query blob too short")
	}
	groupName = binary.LittleEndian.Uint32(b[0:4])
	rest := b[4:]
	if len(rest)%aggr1RecordSize != 0 {
		return 0, nil, fmt.Errorf("wire: Aggr1 blob length %d not a multiple of %d", len(rest), aggr1RecordSize)
	}
	n := len(rest) / aggr1RecordSize
	targets = make([]Aggr1, n)
	for i := 0; i < n; i++ {
		rec := rest[i*aggr1RecordSize : (i+1)*aggr1RecordSize]
		targets[i] = Aggr1{
			TargetName: binary.LittleEndian.Uint32(rec[0:4]),
			AccName:    binary.LittleEndian.Uint32(rec[4:8]),
			Op:         atom.Operator(binary.LittleEndian.Uint32(rec[8:12])),
		}
	}
	return groupName, targets, nil
}

// DecodeProjectionSet parses selector_bytes: a flat array of u32 field
// names forming the caller-supplied projection set (§4.8).
func DecodeProjectionSet(b []byte) (map[uint32]struct{}, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("wire: selector blob length %d not a multiple of 4", len(b))
	}
	set := make(map[uint32]struct{}, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		set[binary.LittleEndian.Uint32(b[i:i+4])] = struct{}{}
	}
	return set, nil
}
