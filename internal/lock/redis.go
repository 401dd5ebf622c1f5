package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the lock is stored under
const DefaultRedisKey = DefaultKey

// Lock value is "{acquired unix ms}|{owner}". Staleness is judged by the caller's clock.
var acquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local cleared = 0
if cur then
	local sep = string.find(cur, '|', 1, true)
	local ts = sep and tonumber(string.sub(cur, 1, sep - 1))
	if ts and (tonumber(ARGV[2]) - ts) < tonumber(ARGV[3]) then
		return 0
	end
	cleared = 1
end
redis.call('SET', KEYS[1], ARGV[2] .. '|' .. ARGV[1], 'PX', ARGV[4])
return 1 + cleared
`)

var releaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
	return 0
end
local sep = string.find(cur, '|', 1, true)
if sep and string.sub(cur, sep + 1) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return -1
`)

// RedisLock shares the lock between processes through one Redis key
type RedisLock struct {
	client     redis.Cmdable
	key        string
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

var _ Service = (*RedisLock)(nil)

// NewRedisLock creates a lock stored under key
func NewRedisLock(client redis.Cmdable, key string, opts ...Option) *RedisLock {
	o := buildOptions(opts)
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLock{client: client, key: key, staleAfter: o.staleAfter, now: o.now, log: o.log}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisLock) TryAcquire(ctx context.Context, owner string) (bool, error) {
	now := r.now()
	// Abandoned keys are garbage collected well after they turn stale
	ttl := 2 * r.staleAfter
	if ttl < time.Second {
		ttl = time.Second
	}

	res, err := acquireScript.Run(ctx, r.client, []string{r.key},
		owner, now.UnixMilli(), r.staleAfter.Milliseconds(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire sync lock: %w", err)
	}

	switch res {
	case 0:
		return false, nil
	case 2:
		r.log.Warn("sync_lock_stale_cleared", "key", r.key, "owner", owner)
	}
	return true, nil
}

func (r *RedisLock) Release(ctx context.Context, owner string) error {
	res, err := releaseScript.Run(ctx, r.client, []string{r.key}, owner).Int()
	if err != nil {
		return fmt.Errorf("release sync lock: %w", err)
	}
	if res < 0 {
		return ErrNotHolder
	}
	return nil
}

func (r *RedisLock) IsStale(ctx context.Context, now time.Time) (bool, error) {
	h, held, err := r.Holder(ctx)
	if err != nil || !held {
		return false, err
	}
	return staleAt(h, now, r.staleAfter), nil
}

func (r *RedisLock) Holder(ctx context.Context) (Holder, bool, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return Holder{}, false, nil
	}
	if err != nil {
		return Holder{}, false, fmt.Errorf("read sync lock: %w", err)
	}

	tsPart, owner, ok := strings.Cut(val, "|")
	if !ok {
		return Holder{}, false, fmt.Errorf("malformed sync lock value %q", val)
	}
	ms, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return Holder{}, false, fmt.Errorf("malformed sync lock timestamp: %w", err)
	}
	return Holder{Owner: owner, AcquiredAt: time.UnixMilli(ms)}, true, nil
}
