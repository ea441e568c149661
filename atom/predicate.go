package atom

// Operator is the wire enumeration of comparison/quantifier/accumulator
// codes (§6). Only the implemented codes and two reserved ones (IN, NOT)
// have a name here; the rest of the wire enumeration is reserved. The query
// Driver rejects a query that names a reserved code before any leaf runs,
// and Eval returns false for one.
type Operator uint32

const (
	OpEQ  Operator = 1
	OpGT  Operator = 2
	OpGTE Operator = 3
	OpIN  Operator = 4 // reserved, not implemented
	OpLT  Operator = 5
	OpLTE Operator = 6
	OpNE  Operator = 7
	OpOR  Operator = 9
	OpAND Operator = 10
	OpNOT Operator = 11 // reserved, not implemented

	OpSUM Operator = 28
	OpCOUNT Operator = 32
	OpMIN Operator = 33
	OpMAX Operator = 34

	OpStart  Operator = 9999
	OpEnd    Operator = 9998
	OpAndAll Operator = 9997
)

// Implemented reports whether op is one of the comparison operators the
// core evaluates directly against atoms.
func Implemented(op Operator) bool {
	switch op {
	case OpEQ, OpNE, OpGT, OpGTE, OpLT, OpLTE:
		return true
	default:
		return false
	}
}

// Eval applies a comparison predicate: filter atom f against observed atom
// a. A match requires both that the "do-not-touch" tie fields agree (name,
// docdepth with f's depth ignored, type, vlen) and that the operator holds
// over the value lane, compared as float64 when the type tag is Floatnum
// and as a signed 64-bit integer otherwise (§4.1).
func Eval(op Operator, f, a Atom) bool {
	if !tieMatches(a, f) {
		return false
	}

	if IsFloat(f.TypeTag()) {
		fv, av := f.ValueFloat(), a.ValueFloat()
		switch op {
		case OpEQ:
			return av == fv
		case OpNE:
			return av != fv
		case OpGT:
			return av > fv
		case OpGTE:
			return av >= fv
		case OpLT:
			return av < fv
		case OpLTE:
			return av <= fv
		}
		return false
	}

	fv, av := f.ValueInt(), a.ValueInt()
	switch op {
	case OpEQ:
		return av == fv
	case OpNE:
		return av != fv
	case OpGT:
		return av > fv
	case OpGTE:
		return av >= fv
	case OpLT:
		return av < fv
	case OpLTE:
		return av <= fv
	}
	return false
}
