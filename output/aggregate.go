package output

import (
	"math"
	"sort"

	"github.com/atombase/atombase/atom"
)

// WriteAggregate formats the composer's group -> per-target scalar rows
// into dst per §4.9: a group atom (name rewritten to ID), one Float atom
// per target, and a document delimiter, repeated per group behind a shared
// ArrayDoc header.
//
// Iteration order follows the group comparator: inline (non-hashed) values
// before hashed ones, natural uint64 order within each — approximated here
// by type tag then raw value, since the core never hashes string/object-id
// values differently from their stored lane. If sortByFirstTarget is set,
// groups are instead ordered by their first target's scalar ascending.
func WriteAggregate(dst []atom.Atom, targetNames []uint32, rows map[atom.Atom][]float64, sortByFirstTarget bool) (int, error) {
	if len(dst) < 1 {
		return 0, ErrOverflow
	}

	groups := make([]atom.Atom, 0, len(rows))
	for g := range rows {
		groups = append(groups, g)
	}

	if sortByFirstTarget {
		sort.Slice(groups, func(i, j int) bool {
			ri, rj := rows[groups[i]], rows[groups[j]]
			if len(ri) == 0 || len(rj) == 0 {
				return len(ri) < len(rj)
			}
			return ri[0] < rj[0]
		})
	} else {
		sort.Slice(groups, func(i, j int) bool {
			a, b := groups[i], groups[j]
			if a.TypeTag() != b.TypeTag() {
				return a.TypeTag() < b.TypeTag()
			}
			return a.Value() < b.Value()
		})
	}

	pos := 1
	for _, g := range groups {
		idAtom := atom.New(g.DocDepth(), atom.NameID, g.TypeTag(), g.VLen(), g.Value())
		if err := emit(dst, &pos, idAtom); err != nil {
			return 0, err
		}
		for i, scalar := range rows[g] {
			name := uint32(0)
			if i < len(targetNames) {
				name = targetNames[i]
			}
			target := atom.New(g.DocDepth(), name, atom.TypeFloatnum, 8, math.Float64bits(scalar))
			if err := emit(dst, &pos, target); err != nil {
				return 0, err
			}
		}
		if err := emit(dst, &pos, atom.MaxKeyDelimiter()); err != nil {
			return 0, err
		}
	}

	dst[0] = atom.ArrayDocHeader(uint64(len(groups)))
	return pos, nil
}
