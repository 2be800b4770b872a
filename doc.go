// Package pocketbook implements the versioned read cache in front of the
// pocketbook document store.
//
// Every logical collection has a version kept next to the primary data
// (versionstore). A read serves the cached snapshot only when the version the
// snapshot was taken at equals the collection's current version; otherwise it
// reads the source and stores the new snapshot. Writes never touch the cache:
// they bump the version, and the next read notices the mismatch.
//
// Components:
//   - Provider: two-key byte store with TTL (Redis, Ristretto, BigCache, sturdyc).
//   - versionstore.Store: per-collection version (Mongo, Redis or Local).
//   - Codec[T]: (de)serializes reader results <-> []byte.
//
// Keys:
//
//	cache:<prefix>:<collection>    - framed snapshot (version + collection + payload)
//	version:<prefix>:<collection>  - canonical version string of that snapshot
//
// Composition:
//
//	gw, _ := pocketbook.New(pocketbook.Options{Provider: p, Versions: vs})
//	books := pocketbook.NewCachedReader[[]Book](gw, "books", store, codec.JSON[[]Book]{})
//	writes := pocketbook.NewVersionBumpingWriter(gw, "books")
//	_ = writes.Apply(ctx, func(ctx context.Context) error { return store.Insert(ctx, b) })
//
// The gateway never fails a read because of the cache or the version store;
// it degrades to reading the source.
package pocketbook
