package slowmode

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"huddle/internal/app/store"
)

// DefaultKeyPrefix namespaces slow-mode hashes in a shared Redis.
const DefaultKeyPrefix = "huddle:slowmode:"

// acquireScript keeps one hash per channel (field = username, value = unix millis of the
// last accepted post). The hash expiry is pushed forward on every accepted post so a
// stale channel does not linger. ARGV[4] is the retention, which must outlast any
// interval the channel may be raised to before the next post.
var acquireScript = redis.NewScript(`
	local key = KEYS[1]
	local user = ARGV[1]
	local now = tonumber(ARGV[2])
	local interval = tonumber(ARGV[3])
	local retention = tonumber(ARGV[4])

	local last = redis.call('HGET', key, user)
	if last then
		local elapsed = now - tonumber(last)
		if elapsed < interval then
			return {0, interval - elapsed}
		end
	end

	redis.call('HSET', key, user, now)
	redis.call('PEXPIRE', key, retention)
	return {1, 0}
`)

// RedisStore shares timers between several server instances.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed timer store.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisStore) key(channelID string) string {
	return s.keyPrefix + channelID
}

// maxInterval is the longest slow-mode interval a channel can be configured with.
const maxInterval = store.MaxSlowModeSeconds * time.Second

// retention is how long a channel's timers are kept after an accepted post.
func retention(interval time.Duration) time.Duration {
	return max(interval, maxInterval)
}

func (s *RedisStore) Acquire(ctx context.Context, channelID, username string, interval time.Duration, now time.Time) (time.Duration, bool, error) {
	result, err := acquireScript.Run(ctx, s.client,
		[]string{s.key(channelID)},
		username, now.UnixMilli(), interval.Milliseconds(), retention(interval).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("slowmode script error: %w", err)
	}

	if len(result) != 2 {
		return 0, false, fmt.Errorf("unexpected Redis response length: %d", len(result))
	}

	if result[0] == 1 {
		return 0, true, nil
	}
	return time.Duration(result[1]) * time.Millisecond, false, nil
}

func (s *RedisStore) Forget(ctx context.Context, channelID string) error {
	return s.client.Del(ctx, s.key(channelID)).Err()
}
