package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every throttle key.
const DefaultKeyPrefix = "accessgate:throttle:"

// slidingWindow is atomic per key: prune, count, then record only when allowed.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max, ARGV[4] unique member
// Returns {allowed, count, retry_after_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, count, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// RedisLimiter is a sliding window shared by every instance behind one Redis.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiter returns a limiter over rdb. An empty prefix uses DefaultKeyPrefix.
func NewRedisLimiter(rdb redis.Scripter, prefix string) *RedisLimiter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, now: time.Now}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	if !limit.Enabled() {
		return Decision{Allowed: true}, nil
	}

	nowMs := l.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.rdb,
		[]string{l.prefix + key},
		nowMs,
		limit.Window.Milliseconds(),
		limit.Max,
		fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("throttle: redis: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("throttle: redis: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: limit.Max - int(res[1])}, nil
	}
	retry := time.Duration(res[2]) * time.Millisecond
	if retry <= 0 {
		retry = time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}
