package pocketbook

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The gateway calls them on hot paths.
type Hooks interface {
	// Every Read reports its outcome.
	// reason ∈ {"", "disabled", "no_collection", "version_error", "no_version",
	// "cold", "stale", "cache_error", "corrupt"}
	ReadOutcome(collection string, outcome Outcome, reason string)

	// A snapshot was deleted by the gateway on read.
	// reason ∈ {"corrupt", "frame_mismatch", "value_decode"}
	SelfHeal(collection, reason string)

	// Provider returned ok=false on SetEntry (newer snapshot present or backpressure).
	ProviderSetRejected(collection string)

	// Provider IO failure. op ∈ {"get", "set", "del"}
	CacheError(collection, op string, err error)

	// Version store errors.
	VersionLookupError(collection string, err error)
	VersionBumpError(collection string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ReadOutcome(string, Outcome, string) {}
func (NopHooks) SelfHeal(string, string)             {}
func (NopHooks) ProviderSetRejected(string)          {}
func (NopHooks) CacheError(string, string, error)    {}
func (NopHooks) VersionLookupError(string, error)    {}
func (NopHooks) VersionBumpError(string, error)      {}
