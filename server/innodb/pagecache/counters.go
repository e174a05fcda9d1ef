package pagecache

import "go.uber.org/atomic"

// Counters tracks the five process-wide statistics from spec.md §2: total
// allocated pages, cache hits, cache misses, recycled pages (freed under
// pressure) and reused pages (freed at filesystem teardown). All fields are
// updated with atomic fetch-add, so they need no lock of their own, matching
// the gfs_* counters in the source.
type Counters struct {
	pageCount atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	recycled  atomic.Uint64
	reused    atomic.Uint64
}

// NewCounters returns a zeroed counter set.
func NewCounters() *Counters { return &Counters{} }

func (c *Counters) incrPageCount() { c.pageCount.Inc() }
func (c *Counters) decrPageCount() { c.pageCount.Dec() }
func (c *Counters) incrHit()       { c.hits.Inc() }
func (c *Counters) incrMiss()      { c.misses.Inc() }
func (c *Counters) incrRecycled()  { c.recycled.Inc() }
func (c *Counters) addReused(n uint64) {
	c.reused.Add(n)
}

// PageCount returns the number of pages currently allocated.
func (c *Counters) PageCount() uint64 { return c.pageCount.Load() }

// Hits returns the number of cache-hit lookups.
func (c *Counters) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of read-miss lookups (GetPage(read=true) that
// had to fetch from disk).
func (c *Counters) Misses() uint64 { return c.misses.Load() }

// Recycled returns the number of pages freed by the eviction path in
// ReleasePage.
func (c *Counters) Recycled() uint64 { return c.recycled.Load() }

// Reused returns the number of pages freed at filesystem teardown via
// Destroy(remove=true).
func (c *Counters) Reused() uint64 { return c.reused.Load() }

// HitRatio returns Hits / (Hits + Misses), or 0 if there have been no
// lookups yet.
func (c *Counters) HitRatio() float64 {
	h, m := c.Hits(), c.Misses()
	total := h + m
	if total == 0 {
		return 0
	}
	return float64(h) / float64(total)
}
