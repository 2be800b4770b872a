package bigcache

import (
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/pocketbook/provider"
)

// Provider keeps snapshots in bigcache. BigCache has no per-entry TTL; entries
// live for Config.LifeWindow regardless of the ttl passed to SetEntry.
type Provider struct {
	c  *bc.BigCache
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) get(key string) ([]byte, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, nil
	}
	return b, err
}

func (p *Provider) GetEntry(_ context.Context, payloadKey, versionKey string) ([]byte, string, error) {
	payload, err := p.get(payloadKey)
	if err != nil {
		return nil, "", err
	}
	version, err := p.get(versionKey)
	if err != nil {
		return nil, "", err
	}
	return payload, string(version), nil
}

func (p *Provider) SetEntry(_ context.Context, e pr.Entry, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.get(e.VersionKey)
	if err != nil {
		return false, err
	}
	if pr.Newer(string(cur), e.Version) {
		return false, nil
	}
	if err := p.c.Set(e.PayloadKey, e.Payload); err != nil {
		return false, err
	}
	if err := p.c.Set(e.VersionKey, []byte(e.Version)); err != nil {
		_ = p.c.Delete(e.PayloadKey)
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		if err := p.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
