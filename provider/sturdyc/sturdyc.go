package sturdyc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/viccon/sturdyc"

	pr "github.com/unkn0wn-root/pocketbook/provider"
)

// Provider keeps snapshots in a sharded sturdyc client. sturdyc applies one TTL
// to every entry (Config.TTL); the per-call ttl is ignored.
type Provider struct {
	c  *sturdyc.Client[[]byte]
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration // 0 => sturdyc default
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.New("sturdyc: capacity must be positive")
	case c.NumShards <= 0 || c.NumShards > c.Capacity:
		return errors.New("sturdyc: shards must be in (0, capacity]")
	case c.TTL <= 0:
		return errors.New("sturdyc: ttl must be positive")
	case c.EvictionPercentage < 0 || c.EvictionPercentage > 100:
		return errors.New("sturdyc: eviction percentage must be in [0, 100]")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	c := sturdyc.New[[]byte](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, opts...)
	return &Provider{c: c}, nil
}

func (p *Provider) GetEntry(_ context.Context, payloadKey, versionKey string) ([]byte, string, error) {
	payload, _ := p.c.Get(payloadKey)
	version, _ := p.c.Get(versionKey)
	return payload, string(version), nil
}

func (p *Provider) SetEntry(_ context.Context, e pr.Entry, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, _ := p.c.Get(e.VersionKey)
	if pr.Newer(string(cur), e.Version) {
		return false, nil
	}
	p.c.Set(e.PayloadKey, e.Payload)
	p.c.Set(e.VersionKey, []byte(e.Version))
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		p.c.Delete(k)
	}
	return nil
}

// Close is a no-op; sturdyc has no background resources to release.
func (p *Provider) Close(_ context.Context) error { return nil }
