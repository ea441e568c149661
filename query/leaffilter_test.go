package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/bin"
	"github.com/atombase/atombase/slotring"
)

func insertDoc(t *testing.T, b *bin.Bin, atoms []atom.Atom) {
	t.Helper()
	view, ptr, err := b.Acquire(len(atoms) * 16)
	require.NoError(t, err)
	copy(view, atoms)
	require.NoError(t, b.Release(ptr))
}

func drainRing(t *testing.T, ring *slotring.Ring) []slotring.Consumed {
	t.Helper()
	var out []slotring.Consumed
	for {
		c, ok := ring.ConsumeOne()
		if !ok {
			return out
		}
		out = append(out, c)
		ring.ReleaseConsumed(c.Handle)
	}
}

func TestFindLeafEmitsMatchingElements(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	insertDoc(t, b, []atom.Atom{atom.New(0, 5, atom.TypeInt64, 8, 42)})
	insertDoc(t, b, []atom.Atom{atom.New(0, 5, atom.TypeInt64, 8, 7)})
	insertDoc(t, b, []atom.Atom{atom.New(0, 5, atom.TypeInt64, 8, 42)})

	ring := slotring.New(slotring.DefaultConfig())
	cancel := NewCancellation()
	leaf := &FindLeaf{PredicateIndex: 0, Op: atom.OpEQ, Filter: atom.New(0, 5, atom.TypeInt64, 8, 42).RemoveDoc()}

	require.NoError(t, leaf.Apply(b, ring, cancel))

	consumed := drainRing(t, ring)
	var elems []int
	for _, c := range consumed {
		for i := 0; i < c.Count; i++ {
			elems = append(elems, c.Records[i].ElemIndex)
		}
	}
	require.ElementsMatch(t, []int{0, 2}, elems)
}

func TestFindLeafNoMatchesEmitsNothing(t *testing.T) {
	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	insertDoc(t, b, []atom.Atom{atom.New(0, 5, atom.TypeInt64, 8, 1)})

	ring := slotring.New(slotring.DefaultConfig())
	cancel := NewCancellation()
	leaf := &FindLeaf{PredicateIndex: 0, Op: atom.OpEQ, Filter: atom.New(0, 5, atom.TypeInt64, 8, 999).RemoveDoc()}

	require.NoError(t, leaf.Apply(b, ring, cancel))
	require.Empty(t, drainRing(t, ring))
}

func TestAggregateLeafEmitsGroupAndContribution(t *testing.T) {
	const groupName, valueName uint32 = 10, 11

	b := bin.New(0, bin.Config{MaxAtomBytes: 4096, MaxElems: 16})
	insertDoc(t, b, []atom.Atom{
		atom.New(0, groupName, atom.TypeUTF8String, 8, 100),
		atom.New(0, valueName, atom.TypeFloatnum, 8, math.Float64bits(3.5)),
	})
	insertDoc(t, b, []atom.Atom{
		atom.New(0, groupName, atom.TypeUTF8String, 8, 100),
		atom.New(0, valueName, atom.TypeFloatnum, 8, math.Float64bits(1.5)),
	})

	ring := slotring.New(slotring.DefaultConfig())
	cancel := NewCancellation()
	leaf := &AggregateLeaf{LeafIndex: 0, GroupName: groupName, ValueName: valueName, Op: atom.OpSUM}

	require.NoError(t, leaf.Apply(b, ring, cancel))

	consumed := drainRing(t, ring)
	require.Len(t, consumed, 1)
	require.Equal(t, 2, consumed[0].Count)
	require.Equal(t, atom.New(0, groupName, atom.TypeUTF8String, 8, 100), consumed[0].Records[0].GroupAtom)
	require.Equal(t, 3.5, math.Float64frombits(consumed[0].Records[0].Value))
	require.Equal(t, 1.5, math.Float64frombits(consumed[0].Records[1].Value))
}
