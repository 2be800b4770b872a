package sloghook

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/pocketbook"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	OutcomeEvery  uint64
	SelfHealEvery uint64
}

// Hooks logs gateway events through slog. Read outcomes are logged at debug,
// self-heals at info and backend errors at warn.
type Hooks struct {
	l    *slog.Logger
	opts Options

	outcomeCtr  atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ pocketbook.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ReadOutcome(collection string, o pocketbook.Outcome, reason string) {
	if h.l == nil || !sample(h.opts.OutcomeEvery, &h.outcomeCtr) {
		return
	}
	h.l.Debug("pocketbook.read",
		"collection", collection,
		"outcome", o.String(),
		"reason", reason)
}

func (h *Hooks) SelfHeal(collection, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Info("pocketbook.self_heal",
		"collection", collection,
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(collection string) {
	if h.l == nil {
		return
	}
	h.l.Debug("pocketbook.provider_set_rejected",
		"collection", collection)
}

func (h *Hooks) CacheError(collection, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("pocketbook.cache_error",
		"collection", collection,
		"op", op,
		"err", err)
}

func (h *Hooks) VersionLookupError(collection string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("pocketbook.version_lookup_error",
		"collection", collection,
		"err", err)
}

func (h *Hooks) VersionBumpError(collection string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("pocketbook.version_bump_error",
		"collection", collection,
		"err", err)
}
