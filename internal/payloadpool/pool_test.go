package payloadpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddspipe/ddspipe/pkg/payloadpool"
)

func TestGet_ReturnsBufferOfRequestedSizeWithRefcountOne(t *testing.T) {
	pool := New(0)

	p, err := pool.Get(10)
	require.NoError(t, err)
	assert.Len(t, p.Bytes, 10)
	assert.EqualValues(t, 10, p.Length)
	assert.NotZero(t, p.ID)
	assert.EqualValues(t, 1, pool.Stats().Outstanding)
}

func TestGet_FailsWithExhaustedWhenCapReached(t *testing.T) {
	pool := New(32)

	_, err := pool.Get(32)
	require.NoError(t, err)

	_, err = pool.Get(1)
	assert.ErrorIs(t, err, payloadpool.ErrExhausted)
}

func TestShare_IncrementsRefcountAndAliasesBytes(t *testing.T) {
	pool := New(0)
	original, err := pool.Get(4)
	require.NoError(t, err)
	copy(original.Bytes, []byte("ping"))

	shared, err := pool.Share(original)
	require.NoError(t, err)
	assert.Equal(t, original.ID, shared.ID)
	assert.Equal(t, "ping", string(shared.Bytes))

	require.NoError(t, pool.Release(original))
	// Still one outstanding reference via shared.
	assert.EqualValues(t, 1, pool.Stats().Outstanding)

	require.NoError(t, pool.Release(shared))
	assert.EqualValues(t, 0, pool.Stats().Outstanding)
}

func TestRelease_ReturnsBufferToFreeListOnLastRelease(t *testing.T) {
	pool := New(0)
	p, err := pool.Get(8)
	require.NoError(t, err)

	require.NoError(t, pool.Release(p))

	second, err := pool.Get(8)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, second.ID, "ids are never reused")
}

func TestRelease_DoubleReleaseIsAHardError(t *testing.T) {
	pool := New(0)
	p, err := pool.Get(8)
	require.NoError(t, err)

	require.NoError(t, pool.Release(p))
	err = pool.Release(p)
	assert.ErrorIs(t, err, payloadpool.ErrDoubleRelease)
}

func TestRelease_EmptyOrNotPoolBackedIsANoOp(t *testing.T) {
	pool := New(0)
	assert.NoError(t, pool.Release(payloadpool.Payload{}))
	assert.NoError(t, pool.Release(payloadpool.Payload{Bytes: []byte("x"), Length: 1}))
}

func TestPool_ConcurrentGetAndRelease(t *testing.T) {
	pool := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := pool.Get(16)
			if err != nil {
				return
			}
			_ = pool.Release(p)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 0, pool.Stats().Outstanding)
}
