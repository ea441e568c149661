// Package atom implements the packed 128-bit record layout and the
// comparison micro-operations that the query engine evaluates directly
// against it.
//
// Layout (little-endian, two 64-bit lanes):
//
//	lane0 (low)  | bits 0..31 docdepth (int32) | bits 32..54 name (23 bits) | bits 55..59 type (5 bits) | bits 60..63 vlen (4 bits) |
//	lane1 (high) | bits 0..63 value                                                                                                |
package atom

import "math"

const (
	nameBits    = 23
	nameShift   = 32
	typeShift   = 55
	typeBits    = 5
	vlenShift   = 60
	vlenBits    = 4

	nameMask = uint64(1<<nameBits - 1)
	typeMask = uint64(1<<typeBits - 1)
	vlenMask = uint64(1<<vlenBits - 1)

	docDepthMask = uint64(0xFFFFFFFF)
)

// Type tags, per the wire enumeration.
const (
	TypeFloatnum    uint8 = 1
	TypeUTF8String  uint8 = 2
	TypeEmbeddedDoc uint8 = 3
	TypeArrayDoc    uint8 = 4
	TypeBinaryData  uint8 = 5
	TypeObjectID    uint8 = 7
	TypeBool        uint8 = 8
	TypeInt32       uint8 = 16
	TypeInt64       uint8 = 18
	TypeMaxKey      uint8 = 19
	TypeMinKey      uint8 = 20
)

// NameID is the only reserved special name used by the core.
const NameID uint32 = 1

// Atom is a single 128-bit record, split into two 64-bit lanes so it can be
// held and compared without pointer indirection.
type Atom struct {
	Lo uint64 // docdepth | name | type | vlen
	Hi uint64 // value
}

// Invalid reports whether this atom is the end-of-document sentinel: its low
// 64 bits (lane0 — docdepth, name, type, vlen) are all zero. Per spec this is
// independent of Hi.
func (a Atom) Invalid() bool { return a.Lo == 0 }

// New builds an atom from its logical fields.
func New(docDepth int32, name uint32, typeTag uint8, vlen uint8, value uint64) Atom {
	lo := uint64(uint32(docDepth))
	lo |= (uint64(name) & nameMask) << nameShift
	lo |= (uint64(typeTag) & typeMask) << typeShift
	lo |= (uint64(vlen) & vlenMask) << vlenShift
	return Atom{Lo: lo, Hi: value}
}

func (a Atom) DocDepth() int32 { return int32(uint32(a.Lo & docDepthMask)) }
func (a Atom) Name() uint32    { return uint32((a.Lo >> nameShift) & nameMask) }
func (a Atom) TypeTag() uint8  { return uint8((a.Lo >> typeShift) & typeMask) }
func (a Atom) VLen() uint8     { return uint8((a.Lo >> vlenShift) & vlenMask) }
func (a Atom) Value() uint64   { return a.Hi }
func (a Atom) ValueInt() int64 { return int64(a.Hi) }
func (a Atom) ValueFloat() float64 {
	return math.Float64frombits(a.Hi)
}

// RemoveName clears the 23-bit name field, returning a new atom.
func (a Atom) RemoveName() Atom {
	a.Lo &^= nameMask << nameShift
	return a
}

// RemoveDoc clears the docdepth field, returning a new atom.
func (a Atom) RemoveDoc() Atom {
	a.Lo &^= docDepthMask
	return a
}

// WithDocDepth returns a copy of a with the docdepth field replaced.
func (a Atom) WithDocDepth(d int32) Atom {
	a.Lo = (a.Lo &^ docDepthMask) | uint64(uint32(d))
	return a
}

// HasInnerDoc reports whether typeTag introduces a nested document whose
// atoms carry a deeper docdepth until a matching depth-closing atom.
func HasInnerDoc(typeTag uint8) bool {
	return typeTag == TypeEmbeddedDoc || typeTag == TypeArrayDoc
}

// IsFloat reports whether typeTag's value lane is a float64 rather than an
// integer/string-hash/object-id lane.
func IsFloat(typeTag uint8) bool { return typeTag == TypeFloatnum }

// tieMatches reports whether a and f agree on the "do-not-touch" fields used
// to identify position/name: name, docdepth, type, vlen. Both sides have
// their docdepth cleared before comparing so a filter atom that ignores
// depth (RemoveDoc applied once, by the caller, per §4.4) still matches
// observed atoms at any depth.
func tieMatches(a, f Atom) bool {
	return a.RemoveDoc().Lo == f.RemoveDoc().Lo
}

// MaxKeyDelimiter is the document-delimiter atom emitted between projected
// documents in the output stream (§4.8).
func MaxKeyDelimiter() Atom {
	return New(0, 0, TypeMaxKey, 8, 0)
}

// ArrayDocHeader builds the back-patched header atom for an output array
// document: type=ArrayDoc, vlen=0, name=0, docdepth=-1, value=documentCount.
func ArrayDocHeader(documentCount uint64) Atom {
	return New(-1, 0, TypeArrayDoc, 0, documentCount)
}
