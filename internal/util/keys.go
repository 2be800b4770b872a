package util

import "strings"

// ViewSep separates a collection from a view name in a snapshot slot.
const ViewSep = "#"

// Slot names one cached snapshot: the collection itself for the default
// view, "<collection>#<view>" otherwise.
func Slot(collection, view string) string {
	if view == "" {
		return collection
	}
	return collection + ViewSep + view
}

// CacheKey returns the payload key of a collection, e.g. "cache:books" or
// "cache:prod:books" with prefix "prod".
func CacheKey(prefix, collection string) string {
	return join("cache", prefix, collection)
}

// VersionKey returns the key mirroring the version the cached payload was read at.
func VersionKey(prefix, collection string) string {
	return join("version", prefix, collection)
}

func join(kind, prefix, collection string) string {
	var b strings.Builder
	b.Grow(len(kind) + len(prefix) + len(collection) + 2)
	b.WriteString(kind)
	b.WriteByte(':')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(':')
	}
	b.WriteString(collection)
	return b.String()
}
