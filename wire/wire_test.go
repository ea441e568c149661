package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atombase/atombase/atom"
)

func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }
func putU64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }

func TestDecodeLFTs(t *testing.T) {
	buf := make([]byte, lftRecordSize*2)
	putU32(buf, 0, 0)
	putU32(buf, 4, uint32(atom.OpEQ))
	putU64(buf, 16, 123)
	putU64(buf, 24, 456)

	putU32(buf, 32, 1)
	putU32(buf, 36, uint32(atom.OpGTE))
	putU64(buf, 48, 7)
	putU64(buf, 56, 8)

	lfts, err := DecodeLFTs(buf)
	require.NoError(t, err)
	require.Len(t, lfts, 2)
	assert.Equal(t, uint32(0), lfts[0].Index)
	assert.Equal(t, atom.OpEQ, lfts[0].Op)
	assert.Equal(t, uint64(123), lfts[0].Filter.Lo)
	assert.Equal(t, uint64(456), lfts[0].Filter.Hi)
	assert.Equal(t, atom.OpGTE, lfts[1].Op)
}

func TestDecodeQPsStripsMarkers(t *testing.T) {
	buf := make([]byte, qpRecordSize*3)
	putU32(buf, 0, uint32(atom.OpStart))
	putU32(buf, 8, uint32(atom.OpAND))
	putU32(buf, 12, 2)
	putU32(buf, 16, uint32(atom.OpEnd))

	nodes, err := DecodeQPs(buf)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, atom.OpAND, nodes[0].Command)
	assert.Equal(t, uint32(2), nodes[0].Kids)
}

func TestDecodeAggregateQuery(t *testing.T) {
	buf := make([]byte, 4+aggr1RecordSize)
	putU32(buf, 0, 99) // group name
	putU32(buf, 4, 5)  // target name
	putU32(buf, 8, 6)  // acc name
	putU32(buf, 12, uint32(atom.OpSUM))

	group, targets, err := DecodeAggregateQuery(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), group)
	require.Len(t, targets, 1)
	assert.Equal(t, atom.OpSUM, targets[0].Op)
}

func TestDecodeProjectionSet(t *testing.T) {
	buf := make([]byte, 8)
	putU32(buf, 0, 5)
	putU32(buf, 4, 9)

	set, err := DecodeProjectionSet(buf)
	require.NoError(t, err)
	_, ok := set[5]
	assert.True(t, ok)
	_, ok = set[9]
	assert.True(t, ok)
}

func TestDecodeLFTsRejectsBadLength(t *testing.T) {
	_, err := DecodeLFTs(make([]byte, 3))
	assert.Error(t, err)
}
