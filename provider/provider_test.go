package provider

import "testing"

func TestNewer(t *testing.T) {
	cases := []struct {
		stored, cand string
		want         bool
	}{
		{"", "10", false},
		{"9", "10", false},
		{"10", "10", false},
		{"11", "10", true},
		{"garbage", "10", false},
		{"11", "garbage", true},
	}
	for _, tc := range cases {
		if got := Newer(tc.stored, tc.cand); got != tc.want {
			t.Fatalf("Newer(%q,%q)=%v want %v", tc.stored, tc.cand, got, tc.want)
		}
	}
}
