package slowmode

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreKey(t *testing.T) {
	s := NewRedisStore(nil, DefaultKeyPrefix)
	assert.Equal(t, "huddle:slowmode:general", s.key("general"))
}

func TestRetentionOutlastsEveryInterval(t *testing.T) {
	assert.Equal(t, maxInterval, retention(5*time.Second))
	assert.Equal(t, maxInterval, retention(0))
	assert.Equal(t, 2*maxInterval, retention(2*maxInterval))
}

// Runs against a live Redis when REDIS_TEST_URL is set.
func TestRedisStoreCooldownIntegration(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client, "test:slowmode:")
	channel := "ch-" + time.Now().Format("150405.000000")
	defer s.Forget(ctx, channel)

	t0 := time.Now()
	_, ok, err := s.Acquire(ctx, channel, "u", 5*time.Second, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, ok, err := s.Acquire(ctx, channel, "u", 5*time.Second, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, remaining)

	require.NoError(t, s.Forget(ctx, channel))
	_, ok, err = s.Acquire(ctx, channel, "u", 5*time.Second, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func newIntegrationRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "test:slowmode:")
}

// Both backends must keep rejecting when the interval is raised after a post, even once
// the old interval has elapsed in wall-clock time.
func TestRaisedIntervalStillRejects(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis":  func(t *testing.T) Store { return newIntegrationRedisStore(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			channel := "raise-" + time.Now().Format("150405.000000")
			t.Cleanup(func() { _ = s.Forget(ctx, channel) })

			t0 := time.Now()
			_, ok, err := s.Acquire(ctx, channel, "u", time.Second, t0)
			require.NoError(t, err)
			require.True(t, ok)

			// Let the old one-second interval pass for real so a TTL tied to it would
			// have dropped the timer.
			time.Sleep(1500 * time.Millisecond)

			remaining, ok, err := s.Acquire(ctx, channel, "u", time.Minute, t0.Add(10*time.Second))
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 50*time.Second, remaining)
		})
	}
}
