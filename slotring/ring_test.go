package slotring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservePromoteConsumeRoundTrip(t *testing.T) {
	r := New(Config{NumSlots: 2, SlotCapacity: 4})

	h, buf, err := r.Reserve()
	require.NoError(t, err)
	buf[0] = Record{ElemIndex: 7}

	require.NoError(t, r.Promote(h, 1, Payload{PredicateIndex: 0, BinIndex: 3}))

	c, ok := r.ConsumeOne()
	require.True(t, ok)
	assert.Equal(t, 1, c.Count)
	assert.Equal(t, 7, c.Records[0].ElemIndex)
	assert.Equal(t, 3, c.Payload.BinIndex)

	r.ReleaseConsumed(c.Handle)

	_, ok = r.ConsumeOne()
	assert.False(t, ok)
}

func TestReserveFullSignalsError(t *testing.T) {
	r := New(Config{NumSlots: 1, SlotCapacity: 1, ReserveWait: time.Microsecond, ReserveTries: 5})

	h, _, err := r.Reserve()
	require.NoError(t, err)

	_, _, err = r.Reserve()
	assert.ErrorIs(t, err, ErrFull)

	r.ReleaseConsumed(h) // not a real consumer release, just frees the slot for cleanup
}

func TestSingleProducerOrderingPreserved(t *testing.T) {
	r := New(Config{NumSlots: 4, SlotCapacity: 8})

	var promotedOrder []int
	for i := 0; i < 4; i++ {
		h, buf, err := r.Reserve()
		require.NoError(t, err)
		buf[0] = Record{ElemIndex: i}
		require.NoError(t, r.Promote(h, 1, Payload{PredicateIndex: 0, BinIndex: 0}))
	}

	for i := 0; i < 4; i++ {
		c, ok := r.ConsumeOne()
		require.True(t, ok)
		promotedOrder = append(promotedOrder, c.Records[0].ElemIndex)
		r.ReleaseConsumed(c.Handle)
	}

	assert.Equal(t, []int{0, 1, 2, 3}, promotedOrder)
}

func TestConcurrentProducersNoDoubleOwnership(t *testing.T) {
	r := New(Config{NumSlots: 8, SlotCapacity: 2})

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		got := 0
		for got < 100 {
			c, ok := r.ConsumeOne()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			mu.Lock()
			for i := 0; i < c.Count; i++ {
				v := c.Records[i].ElemIndex
				assert.False(t, seen[v], "value %d observed twice", v)
				seen[v] = true
				got++
			}
			mu.Unlock()
			r.ReleaseConsumed(c.Handle)
		}
	}()

	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				h, buf, err := r.Reserve()
				require.NoError(t, err)
				buf[0] = Record{ElemIndex: base*10 + i}
				require.NoError(t, r.Promote(h, 1, Payload{PredicateIndex: 0, BinIndex: base}))
			}
		}(p)
	}
	wg.Wait()
	<-consumerDone

	assert.Equal(t, 100, len(seen))
}
