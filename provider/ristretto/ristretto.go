package ristretto

import (
	"context"
	"fmt"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/pocketbook/provider"
)

// Provider keeps snapshots in an in-process ristretto cache.
// Pair writes are serialized by mu; ristretto itself is safe for concurrent reads.
type Provider struct {
	c  *rc.Cache
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

// Config sizes the cache. MaxCost is in bytes since entries are costed by
// payload length.
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func (c Config) validate() error {
	switch {
	case c.NumCounters <= 0:
		return fmt.Errorf("ristretto: NumCounters must be positive, got %d", c.NumCounters)
	case c.MaxCost <= 0:
		return fmt.Errorf("ristretto: MaxCost must be positive, got %d", c.MaxCost)
	case c.BufferItems <= 0:
		return fmt.Errorf("ristretto: BufferItems must be positive, got %d", c.BufferItems)
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Provider{c: c}, nil
}

func (p *Provider) get(key string) []byte {
	v, ok := p.c.Get(key)
	if !ok {
		return nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
	}
	return b
}

func (p *Provider) GetEntry(_ context.Context, payloadKey, versionKey string) ([]byte, string, error) {
	return p.get(payloadKey), string(p.get(versionKey)), nil
}

// SetEntry costs each key by its size. When ristretto drops either half the
// other half is removed too, so a lone key never lingers.
func (p *Provider) SetEntry(_ context.Context, e pr.Entry, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if pr.Newer(string(p.get(e.VersionKey)), e.Version) {
		return false, nil
	}
	okPayload := p.c.SetWithTTL(e.PayloadKey, e.Payload, int64(len(e.Payload)), ttl)
	okVersion := p.c.SetWithTTL(e.VersionKey, []byte(e.Version), int64(len(e.Version)), ttl)
	p.c.Wait()

	if !okPayload || !okVersion {
		p.c.Del(e.PayloadKey)
		p.c.Del(e.VersionKey)
		return false, nil
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		p.c.Del(k)
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
