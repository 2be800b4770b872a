// Package testkit wires an in-memory store, version store, cache and gateway
// for service and handler tests.
package testkit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/docstore/memstore"
	pr "github.com/unkn0wn-root/pocketbook/provider"
	sturdyprov "github.com/unkn0wn-root/pocketbook/provider/sturdyc"
	vs "github.com/unkn0wn-root/pocketbook/versionstore"
)

type Env struct {
	Store    *CountingStore
	Mem      *memstore.Store
	Versions *vs.Local
	Cache    pr.Provider
	Gateway  *pocketbook.Gateway
}

// New builds an Env and closes it when t finishes.
func New(t testing.TB) *Env {
	t.Helper()
	cache, err := sturdyprov.New(sturdyprov.Config{
		Capacity: 1000, NumShards: 4, TTL: time.Hour, EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	versions := vs.NewLocal(0, 0)
	gw, err := pocketbook.New(pocketbook.Options{Provider: cache, Versions: versions})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	mem := memstore.New(memstore.Options{MaxAttempts: 1000})
	env := &Env{
		Store:    &CountingStore{Store: mem},
		Mem:      mem,
		Versions: versions,
		Cache:    cache,
		Gateway:  gw,
	}
	t.Cleanup(func() { _ = gw.Close(context.Background()) })
	return env
}

// Version returns the recorded version of coll, 0 when never bumped.
func (e *Env) Version(t testing.TB, coll pocketbook.Collection) vs.Version {
	t.Helper()
	v, _, err := e.Versions.Current(context.Background(), string(coll))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	return v
}

// CountingStore counts whole-collection reads.
type CountingStore struct {
	docstore.Store
	lists atomic.Int64
}

func (s *CountingStore) List(ctx context.Context, coll string) ([]docstore.Document, error) {
	s.lists.Add(1)
	return s.Store.List(ctx, coll)
}

func (s *CountingStore) Lists() int64 { return s.lists.Load() }
