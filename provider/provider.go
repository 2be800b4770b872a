// Package provider defines the byte store behind the pocketbook gateway.
//
// A cached collection lives under two keys: the framed payload and the
// canonical version string it was read at. Implementations MUST be
// byte-for-byte transparent for the payload and MUST write both keys as one
// unit: readers never observe a payload from one write paired with the
// version of another.
//
// The keyspaces "cache:" and "version:" are owned by the gateway. External
// code MUST NOT write values under these prefixes.
package provider

import (
	"context"
	"strconv"
	"time"
)

// Entry is one cached collection snapshot.
type Entry struct {
	PayloadKey string
	Payload    []byte
	VersionKey string
	Version    string // canonical decimal string
}

// Provider is a minimal two-key byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// GetEntry reads both keys. Missing keys come back as nil payload / "" version;
	// err is reserved for IO/remote failures.
	GetEntry(ctx context.Context, payloadKey, versionKey string) (payload []byte, version string, err error)

	// SetEntry writes payload and version together. It returns ok=false, without
	// writing, when the stored version is numerically newer than e.Version, or
	// when the store rejected the write under pressure. ttl <= 0 means no expiry.
	SetEntry(ctx context.Context, e Entry, ttl time.Duration) (ok bool, err error)

	// Del removes keys (best-effort).
	Del(ctx context.Context, keys ...string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Newer reports whether stored is a valid version numerically greater than candidate.
// Unparseable stored values never block a write.
func Newer(stored, candidate string) bool {
	if stored == "" {
		return false
	}
	s, err := strconv.ParseUint(stored, 10, 64)
	if err != nil {
		return false
	}
	c, err := strconv.ParseUint(candidate, 10, 64)
	if err != nil {
		return true
	}
	return s > c
}
