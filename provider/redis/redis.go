package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/pocketbook/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// setEntryScript writes both keys unless the stored version is newer.
var setEntryScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur then
  local c = tonumber(cur)
  local n = tonumber(ARGV[2])
  if c and n and c > n then return 0 end
end
local px = tonumber(ARGV[3])
if px > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', px)
  redis.call('SET', KEYS[2], ARGV[2], 'PX', px)
else
  redis.call('SET', KEYS[1], ARGV[1])
  redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

type Redis struct {
	rdb            goredis.UniversalClient
	closeClient    bool
	disableScripts bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
	// DisableScripts replaces the compare-and-set script with a plain
	// MULTI/EXEC pair write (for servers with scripting disabled).
	// Both keys still change atomically but an older snapshot may overwrite a newer one.
	DisableScripts bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, disableScripts: cfg.DisableScripts}, nil
}

// GetEntry reads both keys with one MGET.
func (p *Redis) GetEntry(ctx context.Context, payloadKey, versionKey string) ([]byte, string, error) {
	vals, err := p.rdb.MGet(ctx, payloadKey, versionKey).Result()
	if err != nil {
		return nil, "", err // transport/server error
	}
	if len(vals) != 2 {
		return nil, "", fmt.Errorf("redis provider: mget returned %d values", len(vals))
	}
	var payload []byte
	switch v := vals[0].(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	}
	var version string
	switch v := vals[1].(type) {
	case string:
		version = v
	case []byte:
		version = string(v)
	}
	return payload, version, nil
}

func (p *Redis) SetEntry(ctx context.Context, e pr.Entry, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // treat non-positive TTLs as "no expiry" per provider contract
	}
	if p.disableScripts {
		_, err := p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, e.PayloadKey, e.Payload, ttl)
			pipe.Set(ctx, e.VersionKey, e.Version, ttl)
			return nil
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}

	n, err := setEntryScript.Run(ctx, p.rdb,
		[]string{e.PayloadKey, e.VersionKey},
		e.Payload, e.Version, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return p.rdb.Del(ctx, keys...).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
