package crud

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/docstore"
)

// Registry hands out one Collection per name, created on first use. Its
// collections fill a missing id field on listing.
type Registry struct {
	store docstore.Store
	gw    *pocketbook.Gateway
	opts  Options

	mu    sync.Mutex
	colls map[string]*Collection
}

func NewRegistry(store docstore.Store, gw *pocketbook.Gateway, opts Options) *Registry {
	return &Registry{store: store, gw: gw, opts: opts, colls: make(map[string]*Collection)}
}

func (r *Registry) Collection(name string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.colls[name]; ok {
		return c, nil
	}
	opts := r.opts
	opts.FillIDField = true
	c, err := New(r.store, r.gw, name, opts)
	if err != nil {
		return nil, err
	}
	r.colls[name] = c
	return c, nil
}

// Catalog lists the top-level collections of the store.
type Catalog struct {
	store  docstore.Store
	hidden map[string]struct{}
}

// NewCatalog hides the named collections (service-owned ones like chat history) from Names.
func NewCatalog(store docstore.Store, hidden ...string) *Catalog {
	h := make(map[string]struct{}, len(hidden))
	for _, n := range hidden {
		h[n] = struct{}{}
	}
	return &Catalog{store: store, hidden: h}
}

func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	all, err := c.store.Collections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, n := range all {
		if _, skip := c.hidden[n]; !skip {
			out = append(out, n)
		}
	}
	return out, nil
}
