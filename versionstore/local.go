package versionstore

import (
	"context"
	"sync"
	"time"
)

type stamp struct {
	v       Version
	touched time.Time
}

// Local keeps versions in-process. With a sweep interval and a retention set,
// collections not bumped within retention are forgotten; a forgotten
// collection reads as never recorded until its next bump.
type Local struct {
	mu     sync.RWMutex
	stamps map[string]stamp
	clock  *Clock

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Store = (*Local)(nil)

func NewLocal(sweepEvery, retention time.Duration) *Local {
	s := &Local{
		stamps: make(map[string]stamp),
		clock:  NewClock(),
	}
	if sweepEvery > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.sweep(sweepEvery, retention)
	}
	return s
}

func (s *Local) sweep(every, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Current(_ context.Context, collection string) (Version, bool, error) {
	s.mu.RLock()
	st, ok := s.stamps[collection]
	s.mu.RUnlock()
	return st.v, ok, nil
}

// Bump holds the write lock across Clock.Next so concurrent bumps of one
// collection observe each other's result.
func (s *Local) Bump(_ context.Context, collection string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.clock.Next(s.stamps[collection].v)
	s.stamps[collection] = stamp{v: v, touched: time.Now()}
	return v, nil
}

// Cleanup drops collections last bumped before now-retention.
func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for coll, st := range s.stamps {
		if st.touched.Before(cutoff) {
			delete(s.stamps, coll)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	if s.stop == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}
