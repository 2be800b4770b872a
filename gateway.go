package pocketbook

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/pocketbook/internal/util"
	"github.com/unkn0wn-root/pocketbook/internal/wire"
	pr "github.com/unkn0wn-root/pocketbook/provider"
	vs "github.com/unkn0wn-root/pocketbook/versionstore"
)

const tracerName = "github.com/unkn0wn-root/pocketbook"

// Gateway serves collection reads from the cache while the cached snapshot's
// version matches the collection's current version.
type Gateway struct {
	provider pr.Provider
	versions vs.Store
	prefix   string
	ttl      time.Duration
	enabled  bool
	coalesce bool

	log    Logger
	hooks  Hooks
	tracer trace.Tracer
	sf     singleflight.Group
}

func New(opts Options) (*Gateway, error) {
	if !opts.Disabled && opts.Versions == nil {
		return nil, ErrVersionsRequired
	}
	g := &Gateway{
		provider: opts.Provider,
		versions: opts.Versions,
		prefix:   opts.Prefix,
		ttl:      opts.TTL,
		enabled:  !opts.Disabled && opts.Provider != nil,
		coalesce: !opts.DisableCoalescing,
	}

	// nil options fall back to no-op implementations
	g.log = LoggerOrNop(opts.Logger)
	g.hooks = orDefault[Hooks](opts.Hooks, NopHooks{})
	g.tracer = orDefault[trace.Tracer](opts.Tracer, otel.Tracer(tracerName))

	if opts.Provider == nil && !opts.Disabled {
		g.log.Warn("no cache provider configured; reads go to the source", nil)
	}
	return g, nil
}

// Enabled reports whether reads may be served from the cache.
func (g *Gateway) Enabled() bool { return g.enabled }

// Close releases the version store first (best effort), then the provider.
func (g *Gateway) Close(ctx context.Context) error {
	if g.versions != nil {
		_ = g.versions.Close(ctx)
	}
	if g.provider != nil {
		return g.provider.Close(ctx)
	}
	return nil
}

// Read returns the collection's snapshot, from the cache when fresh and from
// fetch otherwise. Only fetch errors are returned; cache and version store
// failures degrade to an uncached read.
//
// The returned slice may be shared with concurrent callers and must not be modified.
func (g *Gateway) Read(ctx context.Context, coll Collection, fetch FetchFunc) ([]byte, Outcome, error) {
	return g.ReadView(ctx, coll, "", fetch)
}

// ReadView is Read for one view of a collection. Views of a collection share
// its version but hold separate snapshots, so readers producing different
// value types for the same collection never see each other's payloads.
func (g *Gateway) ReadView(ctx context.Context, coll Collection, view string, fetch FetchFunc) ([]byte, Outcome, error) {
	ctx, span := g.tracer.Start(ctx, "pocketbook.read",
		trace.WithAttributes(
			attribute.String("pocketbook.collection", string(coll)),
			attribute.String("pocketbook.view", view),
		))
	defer span.End()

	payload, out, reason, err := g.read(ctx, slot{coll: coll, view: view}, fetch)

	span.SetAttributes(attribute.String("pocketbook.outcome", out.String()))
	if reason != "" {
		span.SetAttributes(attribute.String("pocketbook.reason", reason))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.hooks.ReadOutcome(string(coll), out, reason)
	return payload, out, err
}

func (g *Gateway) read(ctx context.Context, sl slot, fetch FetchFunc) ([]byte, Outcome, string, error) {
	coll := sl.coll
	if !g.enabled {
		p, err := fetch(ctx)
		return p, Bypass, "disabled", err
	}
	if coll == "" {
		p, err := fetch(ctx)
		return p, Bypass, "no_collection", err
	}

	// The version is read before the source, so a snapshot is never labeled
	// with a version newer than the data it holds.
	ver, ok, err := g.versions.Current(ctx, string(coll))
	if err != nil {
		g.log.Warn("version lookup failed; reading uncached", Fields{"collection": coll, "err": err})
		g.hooks.VersionLookupError(string(coll), err)
		p, err := fetch(ctx)
		return p, Bypass, "version_error", err
	}
	if !ok {
		// never written: nothing to validate a snapshot against
		p, err := fetch(ctx)
		return p, Miss, "no_version", err
	}

	pk, vk := g.keys(sl)
	want := ver.String()
	cacheUp := true
	reason := "cold"

	raw, cached, err := g.provider.GetEntry(ctx, pk, vk)
	switch {
	case err != nil:
		g.log.Warn("cache read failed; reading uncached", Fields{"collection": coll, "err": err})
		g.hooks.CacheError(string(coll), "get", err)
		cacheUp = false
		reason = "cache_error"
	case cached == want && raw != nil:
		snap, derr := wire.Decode(raw)
		if derr == nil && snap.Collection == sl.name() && snap.Version == uint64(ver) {
			return snap.Payload, Hit, "", nil
		}
		heal := "corrupt"
		if derr == nil {
			heal = "frame_mismatch"
		}
		g.forget(ctx, sl, heal)
		reason = "corrupt"
	case cached != "" && cached != want:
		reason = "stale"
	}

	p, err := g.fill(ctx, sl, ver, fetch, cacheUp)
	return p, Miss, reason, err
}

// fill reads the source once per (collection, view, version) across
// concurrent misses and stores the snapshot when the cache is reachable.
func (g *Gateway) fill(ctx context.Context, sl slot, ver vs.Version, fetch FetchFunc, store bool) ([]byte, error) {
	load := func() (any, error) {
		p, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if store {
			g.store(ctx, sl, ver, p)
		}
		return p, nil
	}
	if !g.coalesce {
		v, err := load()
		p, _ := v.([]byte)
		return p, err
	}
	v, err, _ := g.sf.Do(sl.name()+"@"+ver.String(), load)
	p, _ := v.([]byte)
	return p, err
}

func (g *Gateway) store(ctx context.Context, sl slot, ver vs.Version, payload []byte) {
	coll := sl.coll
	framed, err := wire.Encode(wire.Snapshot{Collection: sl.name(), Version: uint64(ver), Payload: payload})
	if err != nil {
		ferr := &FillError{Collection: string(coll), EncodeErr: err}
		g.log.Error("snapshot encode failed", Fields{"collection": coll, "err": ferr})
		return
	}
	pk, vk := g.keys(sl)
	ok, err := g.provider.SetEntry(ctx, pr.Entry{
		PayloadKey: pk,
		Payload:    framed,
		VersionKey: vk,
		Version:    ver.String(),
	}, g.ttl)
	if err != nil {
		ferr := &FillError{Collection: string(coll), SetErr: err}
		g.log.Warn("cache write failed", Fields{"collection": coll, "err": ferr})
		g.hooks.CacheError(string(coll), "set", ferr)
		return
	}
	if !ok {
		g.log.Debug("cache write refused (newer snapshot or pressure)", Fields{"collection": coll, "version": ver})
		g.hooks.ProviderSetRejected(string(coll))
	}
}

// Bump records a new version for the collection after a successful write.
// Best-effort: failures are logged and reported to hooks, and 0 is returned.
// Until the next successful bump the collection may serve its previous snapshot.
func (g *Gateway) Bump(ctx context.Context, coll Collection) vs.Version {
	if g.versions == nil || coll == "" {
		return 0
	}
	ctx, span := g.tracer.Start(ctx, "pocketbook.bump",
		trace.WithAttributes(attribute.String("pocketbook.collection", string(coll))))
	defer span.End()

	v, err := g.versions.Bump(ctx, string(coll))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.Error("version bump failed", Fields{"collection": coll, "err": err})
		g.hooks.VersionBumpError(string(coll), err)
		return 0
	}
	g.log.Debug("version bumped", Fields{"collection": coll, "version": v})
	return v
}

// Forget drops the cached snapshot of a collection. Used when a hit could not
// be decoded by the reader's codec.
func (g *Gateway) Forget(ctx context.Context, coll Collection) {
	g.ForgetView(ctx, coll, "")
}

// ForgetView drops the cached snapshot of one view of a collection.
func (g *Gateway) ForgetView(ctx context.Context, coll Collection, view string) {
	if !g.enabled || coll == "" {
		return
	}
	g.forget(ctx, slot{coll: coll, view: view}, "value_decode")
}

func (g *Gateway) forget(ctx context.Context, sl slot, reason string) {
	pk, vk := g.keys(sl)
	if err := g.provider.Del(ctx, pk, vk); err != nil && !errors.Is(err, context.Canceled) {
		g.hooks.CacheError(string(sl.coll), "del", err)
	}
	g.hooks.SelfHeal(string(sl.coll), reason)
}

// slot addresses one cached snapshot: a collection and the view it was read as.
type slot struct {
	coll Collection
	view string
}

func (s slot) name() string { return util.Slot(string(s.coll), s.view) }

func (g *Gateway) keys(sl slot) (payloadKey, versionKey string) {
	n := sl.name()
	return util.CacheKey(g.prefix, n), util.VersionKey(g.prefix, n)
}
