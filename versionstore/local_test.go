package versionstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalCurrentMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	v, ok, err := s.Current(ctx, "books")
	if err != nil {
		t.Fatal(err)
	}
	if ok || v != 0 {
		t.Fatalf("got v=%d ok=%v want 0,false", v, ok)
	}
}

func TestLocalBumpIsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	a, err := s.Bump(ctx, "books")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Bump(ctx, "books")
	if err != nil {
		t.Fatal(err)
	}
	if b <= a {
		t.Fatalf("second bump %d not greater than first %d", b, a)
	}
	cur, ok, _ := s.Current(ctx, "books")
	if !ok || cur != b {
		t.Fatalf("current=%d ok=%v want %d", cur, ok, b)
	}
}

func TestLocalConcurrentBumpsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	const n = 200
	out := make(chan Version, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Bump(ctx, "genre")
			if err != nil {
				t.Error(err)
				return
			}
			out <- v
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[Version]bool, n)
	for v := range out {
		if seen[v] {
			t.Fatalf("duplicate version %d", v)
		}
		seen[v] = true
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, time.Second)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1200 * time.Millisecond)
	s.Cleanup(time.Second)

	if _, ok, _ := s.Current(ctx, "old"); ok {
		t.Fatalf("expected pruned entry")
	}
}
