// Package versionstore keeps the per-collection data version that decides
// whether a cached collection snapshot may be served.
//
// Versions are microsecond wall-clock stamps made strictly monotonic by a
// per-process Clock and by the backends themselves (each bump persists
// max(candidate, current+1)), so two bumps never produce the same value.
package versionstore

import (
	"context"
	"strconv"
)

// Version is a collection's data generation. The zero value means "never recorded".
type Version uint64

// String is the canonical form used for comparisons against cached versions.
func (v Version) String() string { return strconv.FormatUint(uint64(v), 10) }

func Parse(s string) (Version, error) {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Version(u), nil
}

// Store abstracts where collection versions live.
// Use Mongo next to the primary data, Redis for a shared cache-side store,
// or Local for single-process deployments and tests.
type Store interface {
	// Current returns the recorded version; ok=false when the collection was never bumped.
	Current(ctx context.Context, collection string) (v Version, ok bool, err error)
	// Bump persists and returns a version strictly greater than the previous one.
	Bump(ctx context.Context, collection string) (Version, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
