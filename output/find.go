// Package output formats composer results into the caller's flat atom
// buffer: the find projection (§4.8) and the aggregate output (§4.9), both
// sharing the back-patched ArrayDoc header / MaxKey delimiter framing.
package output

import (
	"errors"
	"sort"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
)

// MaxBufferAtoms is the atom count of a 16 MiB output buffer (§6/§7). The
// formatters do not consult it; they signal ErrOverflow when dst itself is
// exhausted.
const MaxBufferAtoms = 16 * 1024 * 1024 / 16

// ErrOverflow is returned when a formatter would exceed the output buffer's
// capacity; fatal to the query per §7 ("CapacityExceeded... output buffer
// overflow (fatal -> cancel query)").
var ErrOverflow = errors.New("output: buffer overflow")

func emit(dst []atom.Atom, pos *int, a atom.Atom) error {
	if *pos >= len(dst) {
		return ErrOverflow
	}
	dst[*pos] = a
	*pos++
	return nil
}

// projectionPlan derives the per-element working set from the caller's
// projection set: ID is projected iff the set does *not* name it (§4.8's
// inverse convention; see DESIGN.md Open Question decisions), and an empty
// working set (after removing ID) means "project everything".
func projectionPlan(selector map[uint32]struct{}) (working map[uint32]struct{}, idWanted, all bool) {
	if len(selector) == 0 {
		return nil, true, true
	}
	w := make(map[uint32]struct{}, len(selector))
	for k := range selector {
		w[k] = struct{}{}
	}
	_, excluded := w[atom.NameID]
	idWanted = !excluded
	delete(w, atom.NameID)
	return w, idWanted, len(w) == 0
}

// skipSubtree advances past a container atom's nested atoms without
// emitting them. The container's own Value() is the count of same-depth
// boundary atoms (array-element separators) still to be retained before
// the subtree closes; the first boundary atom past that count ends it.
// Atoms nested deeper than the container are always part of the subtree.
func skipSubtree(atoms []atom.Atom, i int) int {
	depth := atoms[i].DocDepth()
	depthsToSkip := int64(atoms[i].Value())
	i++
	for i < len(atoms) && !atoms[i].Invalid() {
		if atoms[i].DocDepth() == depth {
			depthsToSkip--
			if depthsToSkip < 0 {
				break
			}
		}
		i++
	}
	return i
}

// emitSubtree copies a container atom's nested atoms verbatim, the
// complement of skipSubtree (same depthsToSkip accounting).
func emitSubtree(dst []atom.Atom, pos *int, atoms []atom.Atom, i int) (int, error) {
	depth := atoms[i].DocDepth()
	depthsToSkip := int64(atoms[i].Value())
	i++
	for i < len(atoms) && !atoms[i].Invalid() {
		if atoms[i].DocDepth() == depth {
			depthsToSkip--
			if depthsToSkip < 0 {
				break
			}
		}
		if err := emit(dst, pos, atoms[i]); err != nil {
			return i, err
		}
		i++
	}
	return i, nil
}

// emitElement writes one matched element's projected atoms, per §4.8.
func emitElement(dst []atom.Atom, pos *int, atoms []atom.Atom, selector map[uint32]struct{}) error {
	working, idWanted, all := projectionPlan(selector)
	idHandled := false

	for i := 0; i < len(atoms); {
		a := atoms[i]
		if a.Invalid() {
			break
		}

		if a.Name() == atom.NameID {
			if idWanted {
				if err := emit(dst, pos, a); err != nil {
					return err
				}
			}
			idHandled = true
			i++
		} else if all {
			if err := emit(dst, pos, a); err != nil {
				return err
			}
			i++
			if atom.HasInnerDoc(a.TypeTag()) {
				var err error
				i, err = emitSubtree(dst, pos, atoms, i-1)
				if err != nil {
					return err
				}
			}
		} else if _, want := working[a.Name()]; want {
			delete(working, a.Name())
			if err := emit(dst, pos, a); err != nil {
				return err
			}
			i++
			if atom.HasInnerDoc(a.TypeTag()) {
				var err error
				i, err = emitSubtree(dst, pos, atoms, i-1)
				if err != nil {
					return err
				}
			}
		} else {
			if atom.HasInnerDoc(a.TypeTag()) {
				i = skipSubtree(atoms, i)
			} else {
				i++
			}
		}

		if !all && idHandled && len(working) == 0 {
			break
		}
	}
	return nil
}

// WriteFind projects the composer's per-bin match lists into dst, returning
// the atom count written (including the header) per §4.8.
func WriteFind(dst []atom.Atom, bins []*bin.Bin, matches map[int][]int, selector map[uint32]struct{}) (int, error) {
	if len(dst) < 1 {
		return 0, ErrOverflow
	}
	pos := 1 // reserve the header slot for back-patching

	binIdxs := make([]int, 0, len(bins))
	for i := range bins {
		binIdxs = append(binIdxs, i)
	}
	sort.Ints(binIdxs)

	docCount := uint64(0)
	for _, bi := range binIdxs {
		b := bins[bi]
		elems := append([]int(nil), matches[int(b.ID())]...)
		sort.Ints(elems)
		for _, elemIdx := range elems {
			begin, end, ok := b.Range(elemIdx)
			if !ok {
				continue
			}
			atoms := b.Atoms(begin, end)
			if err := emitElement(dst, &pos, atoms, selector); err != nil {
				return 0, err
			}
			if err := emit(dst, &pos, atom.MaxKeyDelimiter()); err != nil {
				return 0, err
			}
			docCount++
		}
	}

	dst[0] = atom.ArrayDocHeader(docCount)
	return pos, nil
}
