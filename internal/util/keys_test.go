package util

import "testing"

func TestKeys(t *testing.T) {
	cases := []struct {
		prefix, coll, cache, version string
	}{
		{"", "books", "cache:books", "version:books"},
		{"prod", "genre", "cache:prod:genre", "version:prod:genre"},
		{"", "Year/2024/Months", "cache:Year/2024/Months", "version:Year/2024/Months"},
	}
	for _, tc := range cases {
		if got := CacheKey(tc.prefix, tc.coll); got != tc.cache {
			t.Fatalf("CacheKey(%q,%q)=%q want %q", tc.prefix, tc.coll, got, tc.cache)
		}
		if got := VersionKey(tc.prefix, tc.coll); got != tc.version {
			t.Fatalf("VersionKey(%q,%q)=%q want %q", tc.prefix, tc.coll, got, tc.version)
		}
	}
}

func TestSlot(t *testing.T) {
	if got := Slot("shelves", ""); got != "shelves" {
		t.Fatalf("default view: %q", got)
	}
	if got := Slot("shelves", "layout"); got != "shelves#layout" {
		t.Fatalf("named view: %q", got)
	}
	if got := CacheKey("prod", Slot("Year", "tree")); got != "cache:prod:Year#tree" {
		t.Fatalf("key: %q", got)
	}
}
