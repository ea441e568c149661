package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
)

const (
	nameFoo   uint32 = 40
	nameBar   uint32 = 41
	nameTags  uint32 = 42
	nameInner uint32 = 43
	nameSep   uint32 = 44
	nameAfter uint32 = 45
)

func putElem(t *testing.T, b *bin.Bin, atoms []atom.Atom) int {
	t.Helper()
	view, ptr, err := b.Acquire(len(atoms) * 16)
	require.NoError(t, err)
	copy(view, atoms)
	require.NoError(t, b.Release(ptr))
	return ptr.ElemIdx
}

func TestWriteFindEmptyMatchesWritesHeaderOnly(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	dst := make([]atom.Atom, 64)
	n, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, atom.ArrayDocHeader(0), dst[0])
}

func TestWriteFindNoProjectionCopiesEverything(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	doc := []atom.Atom{
		atom.New(0, atom.NameID, atom.TypeInt64, 8, 7),
		atom.New(0, nameFoo, atom.TypeInt64, 8, 99),
	}
	elem := putElem(t, b, doc)

	dst := make([]atom.Atom, 64)
	n, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{0: {elem}}, nil)
	require.NoError(t, err)

	assert.Equal(t, atom.ArrayDocHeader(1), dst[0])
	assert.Equal(t, doc[0], dst[1])
	assert.Equal(t, doc[1], dst[2])
	assert.Equal(t, atom.MaxKeyDelimiter(), dst[3])
	assert.Equal(t, 4, n)
}

func TestWriteFindSelectorInverseIDConvention(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	doc := []atom.Atom{
		atom.New(0, atom.NameID, atom.TypeInt64, 8, 7),
		atom.New(0, nameFoo, atom.TypeInt64, 8, 99),
		atom.New(0, nameBar, atom.TypeInt64, 8, 1),
	}
	elem := putElem(t, b, doc)

	// selector names nameFoo only, and does NOT name ID -> ID is projected
	// (inverse convention), nameFoo is projected, nameBar is dropped.
	selector := map[uint32]struct{}{nameFoo: {}}
	dst := make([]atom.Atom, 64)
	_, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{0: {elem}}, selector)
	require.NoError(t, err)

	assert.Equal(t, doc[0], dst[1]) // ID
	assert.Equal(t, doc[1], dst[2]) // nameFoo
	assert.Equal(t, atom.MaxKeyDelimiter(), dst[3])
}

func TestWriteFindSelectorContainingIDSuppressesIt(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	doc := []atom.Atom{
		atom.New(0, atom.NameID, atom.TypeInt64, 8, 7),
		atom.New(0, nameFoo, atom.TypeInt64, 8, 99),
	}
	elem := putElem(t, b, doc)

	selector := map[uint32]struct{}{atom.NameID: {}, nameFoo: {}}
	dst := make([]atom.Atom, 64)
	_, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{0: {elem}}, selector)
	require.NoError(t, err)

	assert.Equal(t, doc[1], dst[1]) // nameFoo only, ID suppressed
	assert.Equal(t, atom.MaxKeyDelimiter(), dst[2])
}

// nestedDoc builds one document with a selected ArrayDoc container (depth 0,
// value 2 — two same-depth boundary atoms still to retain, per
// Projections.cpp's FindProjectSome) wrapping two nested elements at depth
// 1, each followed by a depth-0 boundary atom, then a genuine sibling field
// at depth 0 that must NOT be swallowed into the subtree.
func nestedDoc() []atom.Atom {
	return []atom.Atom{
		atom.New(0, atom.NameID, atom.TypeInt64, 8, 1),
		atom.New(0, nameTags, atom.TypeArrayDoc, 0, 2),
		atom.New(1, nameInner, atom.TypeInt64, 8, 10),
		atom.New(0, nameSep, atom.TypeBool, 8, 1),
		atom.New(1, nameInner, atom.TypeInt64, 8, 20),
		atom.New(0, nameSep, atom.TypeBool, 8, 1),
		atom.New(0, nameAfter, atom.TypeInt64, 8, 999),
	}
}

func TestWriteFindEmitsFullArrayDocSubtreeAcrossMultipleElements(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	doc := nestedDoc()
	elem := putElem(t, b, doc)

	selector := map[uint32]struct{}{nameTags: {}, nameAfter: {}}
	dst := make([]atom.Atom, 64)
	n, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{0: {elem}}, selector)
	require.NoError(t, err)

	// ID (inverse convention) + container + both nested elements + both
	// retained boundary atoms + the genuine sibling field + delimiter.
	want := []atom.Atom{
		atom.ArrayDocHeader(1),
		doc[0], // ID
		doc[1], // container
		doc[2], // elem 1
		doc[3], // boundary 1 (retained)
		doc[4], // elem 2
		doc[5], // boundary 2 (retained)
		doc[6], // genuine sibling field
		atom.MaxKeyDelimiter(),
	}
	assert.Equal(t, want, dst[:n])
}

func TestWriteFindSkipsWholeArrayDocSubtreeWhenNotSelected(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	doc := nestedDoc()
	elem := putElem(t, b, doc)

	selector := map[uint32]struct{}{nameAfter: {}}
	dst := make([]atom.Atom, 64)
	n, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{0: {elem}}, selector)
	require.NoError(t, err)

	want := []atom.Atom{
		atom.ArrayDocHeader(1),
		doc[0], // ID
		doc[6], // genuine sibling field; container's subtree fully skipped
		atom.MaxKeyDelimiter(),
	}
	assert.Equal(t, want, dst[:n])
}

func TestWriteFindOverflowSignalsError(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	doc := []atom.Atom{atom.New(0, nameFoo, atom.TypeInt64, 8, 1)}
	elem := putElem(t, b, doc)

	dst := make([]atom.Atom, 2) // header + 1 atom, no room for the delimiter
	_, err := WriteFind(dst, []*bin.Bin{b}, map[int][]int{0: {elem}}, nil)
	assert.ErrorIs(t, err, ErrOverflow)
}
