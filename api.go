package pocketbook

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	pr "github.com/unkn0wn-root/pocketbook/provider"
	vs "github.com/unkn0wn-root/pocketbook/versionstore"
)

// Collection names a cached logical collection ("books", "genre", "Year", ...).
type Collection string

func (c Collection) String() string { return string(c) }

// FetchFunc reads the source of truth and returns the serialized result.
// A non-nil error means the result must not be cached.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Outcome reports how a read was served.
type Outcome uint8

const (
	// Bypass: caching was skipped entirely (disabled, unnamed collection, version store error).
	Bypass Outcome = iota
	// Hit: served from the cache without touching the source.
	Hit
	// Miss: read from the source; the snapshot was stored when possible.
	Miss
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	default:
		return "bypass"
	}
}

// Options configure a Gateway.
// With a nil Provider the gateway passes every read through and only keeps versions current.
type Options struct {
	Provider pr.Provider
	Versions vs.Store // required unless Disabled

	Prefix   string        // optional key prefix: cache:<prefix>:<collection>
	TTL      time.Duration // snapshot TTL; 0 => no expiry (versions do the invalidation)
	Disabled bool          // default false (enabled)

	Logger Logger       // if nil, NopLogger is used
	Hooks  Hooks        // if nil, NopHooks is used
	Tracer trace.Tracer // if nil, the global otel tracer provider is used

	// DisableCoalescing turns off sharing one source read between concurrent misses.
	DisableCoalescing bool
}
