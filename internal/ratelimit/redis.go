package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// allowScript opens a window on the first hit, refuses once the count reaches the
// limit and otherwise increments. Returns {allowed, count, pttl}.
var allowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
	return {1, 1, tonumber(ARGV[2])}
end
current = tonumber(current)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	ttl = tonumber(ARGV[2])
end
if current >= tonumber(ARGV[1]) then
	return {0, current, ttl}
end
current = redis.call('INCR', KEYS[1])
return {1, current, ttl}
`)

// RedisStore shares windows between relay instances. Expiry is Redis's job, so no sweeper.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + NormalizeKey(k)
}

func (s *RedisStore) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := allowScript.Run(ctx, s.client, []string{s.key(key)}, s.limit, s.window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	ttl, _ := res[2].(int64)

	return Decision{
		Allowed: allowed == 1,
		Count:   int(count),
		Limit:   s.limit,
		ResetAt: s.now().Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (Record, bool, error) {
	k := s.key(key)
	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return Record{}, false, fmt.Errorf("corrupt counter %q: %w", val, err)
	}
	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return Record{}, false, err
	}
	return Record{Count: count, ResetAt: s.now().Add(ttl)}, true, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
