// Package asynchook moves gateway hook calls off the request path.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{OutcomeEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	gw, _ := pocketbook.New(pocketbook.Options{
//	    Provider: provider,
//	    Versions: versions,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped, never queued unbounded, when the workers fall behind.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/pocketbook"
)

type Hooks struct {
	inner   pocketbook.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ pocketbook.Hooks = (*Hooks)(nil)

func New(inner pocketbook.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a channel closed between the check and the send
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ReadOutcome(c string, o pocketbook.Outcome, r string) {
	h.try(func() { h.inner.ReadOutcome(c, o, r) })
}
func (h *Hooks) SelfHeal(c, r string)          { h.try(func() { h.inner.SelfHeal(c, r) }) }
func (h *Hooks) ProviderSetRejected(c string)  { h.try(func() { h.inner.ProviderSetRejected(c) }) }
func (h *Hooks) CacheError(c, op string, err error) {
	h.try(func() { h.inner.CacheError(c, op, err) })
}
func (h *Hooks) VersionLookupError(c string, err error) {
	h.try(func() { h.inner.VersionLookupError(c, err) })
}
func (h *Hooks) VersionBumpError(c string, err error) {
	h.try(func() { h.inner.VersionBumpError(c, err) })
}
