package versionstore

import (
	"sync/atomic"
	"time"
)

// Clock hands out strictly increasing microsecond stamps.
// Next never returns the same value twice within a process, even when the
// wall clock stalls or steps backwards.
type Clock struct {
	last atomic.Uint64
	now  func() time.Time
}

func NewClock() *Clock { return &Clock{now: time.Now} }

// Next returns max(now_us, last+1, floor+1).
func (c *Clock) Next(floor Version) Version {
	for {
		last := c.last.Load()
		cand := uint64(c.now().UnixMicro())
		if cand <= last {
			cand = last + 1
		}
		if cand <= uint64(floor) {
			cand = uint64(floor) + 1
		}
		if c.last.CompareAndSwap(last, cand) {
			return Version(cand)
		}
	}
}

// Observe raises the clock to at least v, so versions issued by another
// process are never re-issued here.
func (c *Clock) Observe(v Version) {
	for {
		last := c.last.Load()
		if uint64(v) <= last || c.last.CompareAndSwap(last, uint64(v)) {
			return
		}
	}
}
