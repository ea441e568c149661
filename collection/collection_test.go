package collection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	return Config{BinMaxElems: 4, BinMaxBytes: 16 * 8}
}

func TestAcquireGrowsOnBinFull(t *testing.T) {
	c := New("orders", smallConfig())
	require.Equal(t, 1, c.BinCount())

	for i := 0; i < 4; i++ {
		_, _, err := c.AcquireInsertBuffer(16)
		require.NoError(t, err)
	}

	// the fifth element must not fit the first bin (4 elems max)
	_, _, err := c.AcquireInsertBuffer(16)
	require.NoError(t, err)
	assert.Equal(t, 2, c.BinCount())
}

func TestGrowIsAppendOnlyUnderConcurrency(t *testing.T) {
	c := New("orders", Config{BinMaxElems: 2, BinMaxBytes: 16 * 100})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.AcquireInsertBuffer(16)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, c.BinCount(), 25)
}

func TestReleaseInsertBufferWrongCollectionFails(t *testing.T) {
	a := New("a", smallConfig())
	bCol := New("b", smallConfig())

	_, p, err := a.AcquireInsertBuffer(16)
	require.NoError(t, err)

	assert.False(t, bCol.ReleaseInsertBuffer(p))
	assert.True(t, a.ReleaseInsertBuffer(p))
}

func TestMaxBinsEnforced(t *testing.T) {
	c := New("small", Config{BinMaxElems: 1, BinMaxBytes: 16, MaxBins: 2})

	_, _, err := c.AcquireInsertBuffer(16)
	require.NoError(t, err)
	_, _, err = c.AcquireInsertBuffer(16)
	require.NoError(t, err)

	_, _, err = c.AcquireInsertBuffer(16)
	assert.Error(t, err)
}
