package slowmode

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCooldown(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	interval := 5 * time.Second

	_, ok, err := s.Acquire(ctx, "general", "u", interval, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, ok, err := s.Acquire(ctx, "general", "u", interval, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, remaining)

	_, ok, err = s.Acquire(ctx, "general", "u", interval, t0.Add(6*time.Second))
	require.NoError(t, err)
	assert.True(t, ok, "rejected attempts must not push the timer forward")
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_, ok, _ := s.Acquire(ctx, "a", "u", time.Minute, now)
	require.True(t, ok)

	_, ok, _ = s.Acquire(ctx, "a", "v", time.Minute, now)
	assert.True(t, ok, "other user in same channel")

	_, ok, _ = s.Acquire(ctx, "b", "u", time.Minute, now)
	assert.True(t, ok, "same user in other channel")
}

func TestMemoryStoreForget(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_, ok, _ := s.Acquire(ctx, "a", "u", time.Minute, now)
	require.True(t, ok)
	require.NoError(t, s.Forget(ctx, "a"))

	_, ok, _ = s.Acquire(ctx, "a", "u", time.Minute, now)
	assert.True(t, ok)
}

func TestMemoryStoreConcurrentAcquireAdmitsOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := s.Acquire(ctx, "a", "u", time.Minute, now); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
}
