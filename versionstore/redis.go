package versionstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bumpScript stores max(candidate, current+1) and returns it as a decimal string.
// Stamps stay below 2^53, so Lua numbers hold them exactly.
var bumpScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local nv = tonumber(ARGV[1])
if nv <= cur then nv = cur + 1 end
local s = string.format('%.0f', nv)
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], s, 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], s)
end
return s
`)

// Redis shares collection versions across processes through a Redis server.
// Optionally, a TTL can be applied to version keys to prevent unbounded growth.
// An expired key reads as "never recorded", which only disables caching until the next bump.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  *Clock
}

var _ Store = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return NewRedisWithTTL(client, prefix, 0)
}

// NewRedisWithTTL creates a Redis-backed version store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisWithTTL(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, prefix: prefix, ttl: ttl, clock: NewClock()}
}

func (s *Redis) key(collection string) string {
	if s.prefix == "" {
		return "meta:" + collection
	}
	return "meta:" + s.prefix + ":" + collection
}

func (s *Redis) Current(ctx context.Context, collection string) (Version, bool, error) {
	res, err := s.rdb.Get(ctx, s.key(collection)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := Parse(res)
	if err != nil {
		return 0, false, fmt.Errorf("redis version parse: %w", err)
	}
	return v, true, nil
}

func (s *Redis) Bump(ctx context.Context, collection string) (Version, error) {
	cand := s.clock.Next(0)
	res, err := bumpScript.Run(ctx, s.rdb,
		[]string{s.key(collection)},
		strconv.FormatUint(uint64(cand), 10),
		s.ttl.Milliseconds(),
	).Text()
	if err != nil {
		return 0, err
	}
	v, err := Parse(res)
	if err != nil {
		return 0, fmt.Errorf("redis version parse: %w", err)
	}
	s.clock.Observe(v)
	return v, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Redis) Close(context.Context) error { return nil }
