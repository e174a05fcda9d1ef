package pagecache

import (
	"github.com/zhukovaskychina/lcfs-pagecache/logger"
)

// Cache is the sharded map block -> Page (spec.md §3's "Page Cache"):
// buckets []bucket, a device for read-through, an allocator for page-data
// buffers, and the process-wide counters. Precondition on every operation
// below that takes a block id: block != 0 and block != InvalidBlock.
type Cache struct {
	cfg      Config
	buckets  []bucket
	device   BlockDevice
	alloc    Allocator
	counters *Counters
}

// NewCache allocates the bucket array and wires the cache to its block
// device, matching lc_pcache_init plus the read-through collaborator the
// spec keeps out of scope but the Go surface needs a concrete type for.
// If alloc is nil a plain Go-slice allocator is used.
func NewCache(cfg Config, device BlockDevice, alloc Allocator, counters *Counters) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, newCacheError("NewCache", errWrap(ErrInvalidConfig, "device must not be nil"))
	}
	if alloc == nil {
		alloc = newSimpleAllocator(cfg.BlockSize)
	}
	if counters == nil {
		counters = NewCounters()
	}
	return &Cache{
		cfg:      cfg,
		buckets:  make([]bucket, cfg.ShardCount),
		device:   device,
		alloc:    alloc,
		counters: counters,
	}, nil
}

// Counters returns the cache's counter set.
func (c *Cache) Counters() *Counters { return c.counters }

func (c *Cache) hash(block uint64) uint64 {
	return block % uint64(len(c.buckets))
}

func checkBlock(block uint64) error {
	if block == 0 || block == InvalidBlock {
		return newCacheError("pagecache", ErrInvalidBlock)
	}
	return nil
}

// Destroy walks every bucket, frees every page regardless of the refcount
// already being guaranteed zero by the caller's quiescence contract, and
// frees the bucket array. If remove is true the freed count is folded into
// the process-wide "reused" counter, tracking pages lost to filesystem
// removal (lc_destroy_pages). Destroy is not concurrent with live lookups;
// the caller must guarantee quiescence first.
func (c *Cache) Destroy(remove bool) {
	var total uint64
	for i := range c.buckets {
		total += c.buckets[i].drain(c.counters)
	}
	c.buckets = nil
	if total > 0 && remove {
		c.counters.addReused(total)
	}
}

// GetPage returns a page for block with refcount incremented. If read is
// true, the returned page's Data() holds the on-disk contents. This is
// lc_getPage, re-expressed as a bounded two-phase loop (scan under lock,
// then allocate outside the lock) instead of `goto retry`.
func (c *Cache) GetPage(block uint64, read bool) (*Page, error) {
	if err := checkBlock(block); err != nil {
		return nil, err
	}

	h := c.hash(block)
	b := &c.buckets[h]

	var page *Page
	var candidate *Page
	hit := false

	for {
		b.mu.Lock()
		page = b.find(block)
		if page != nil {
			page.refcount++
			hit = true
		} else if candidate != nil {
			page = candidate
			candidate = nil
			page.block = block
			b.push(page)
		}
		b.mu.Unlock()

		if page != nil {
			break
		}

		// Two-phase retry: allocate outside the bucket lock, then loop
		// back to scan-and-publish. Concurrent missers on the same
		// block may each allocate a candidate; whichever wins the
		// bucket lock with a candidate in hand publishes it, the
		// loser discards its own below.
		candidate = newPage(c.counters)
	}

	if candidate != nil {
		candidate.refcount = 0
		freePage(c.counters, candidate)
	}

	if read && !page.dvalid {
		if err := c.loadData(page, block); err != nil {
			return nil, err
		}
	}

	if hit {
		c.counters.incrHit()
	} else if read {
		c.counters.incrMiss()
	}

	if page.refcount == 0 {
		panic("pagecache: GetPage postcondition violated: refcount == 0")
	}
	if page.block != block {
		panic("pagecache: GetPage postcondition violated: block mismatch")
	}
	if read && (!page.dvalid || page.data == nil) {
		panic("pagecache: GetPage postcondition violated: read requested but data missing")
	}
	return page, nil
}

// loadData takes page.dlock, re-checks dvalid, and on a genuine miss
// allocates the data buffer and reads the block from disk. Exactly one
// caller performs the disk read per page-load; readers of different pages
// proceed in parallel since dlock is per-page. On a read failure dlock is
// released before the bucket lock is taken to drop the caller's reference.
func (c *Cache) loadData(page *Page, block uint64) error {
	page.dlock.Lock()

	if page.dvalid {
		page.dlock.Unlock()
		return nil
	}

	buf := page.data
	if buf == nil {
		buf = c.alloc.AllocPage()
	}
	if err := c.device.ReadBlock(block, buf); err != nil {
		page.dlock.Unlock()
		logger.Warnf("pagecache: read_block(%d) failed: %v", block, err)
		h := c.hash(block)
		b := &c.buckets[h]
		b.mu.Lock()
		page.refcount--
		b.mu.Unlock()
		return newCacheError("GetPage", errWrap(err, "read_block"))
	}
	page.data = buf
	page.dvalid = true
	page.dlock.Unlock()
	return nil
}

// AddPageBlockHash explicitly attaches a detached page (refcount >= 1,
// block == InvalidBlock) to block. If an existing page already carries
// block, it is invalidated in place but NOT unlinked -- the chain keeps a
// detached zombie entry that the next eviction pass on that bucket will
// reclaim. This is lc_addPageBlockHash's specified behavior; see
// DESIGN.md's open-question note.
func (c *Cache) AddPageBlockHash(page *Page, block uint64) error {
	if err := checkBlock(block); err != nil {
		return err
	}
	if page.block != InvalidBlock {
		panic("pagecache: AddPageBlockHash on an already-attached page")
	}

	page.block = block
	h := c.hash(block)
	b := &c.buckets[h]

	b.mu.Lock()
	defer b.mu.Unlock()

	for p := b.head; p != nil; p = p.cnext {
		if p.block == block && p != page {
			if p.refcount != 0 {
				panic("pagecache: AddPageBlockHash found live duplicate with refcount != 0")
			}
			p.block = InvalidBlock
			break
		}
	}
	b.push(page)
	return nil
}

// ReleasePage decrements page's refcount under the owning bucket's lock. If
// read is true, hitcount is incremented. If the bucket's pcount exceeds the
// soft per-shard cap, a single-pass lowest-hit-count scan picks a victim
// among refcount==0 pages (ties go to the last page seen in the chain, a
// deliberate tail-draining tie-break) and evicts it. This is lc_releasePage.
func (c *Cache) ReleasePage(page *Page, read bool) {
	h := c.hash(page.block)
	b := &c.buckets[h]

	var victim, victimPrev *Page

	b.mu.Lock()
	if page.refcount == 0 {
		b.mu.Unlock()
		panic("pagecache: ReleasePage on page with refcount == 0")
	}
	page.refcount--
	if read {
		page.hitcount++
	}

	if b.pcount > c.cfg.perBucketCap() {
		minHit := page.hitcount
		var prev *Page
		for p := b.head; p != nil; p = p.cnext {
			if p.refcount == 0 && p.hitcount <= minHit {
				victim = p
				victimPrev = prev
				minHit = p.hitcount
			}
			prev = p
		}
		if victim != nil {
			b.unlink(victimPrev, victim)
			victim.block = InvalidBlock
		}
	}
	b.mu.Unlock()

	if victim != nil {
		victim.refcount = 0
		freePage(c.counters, victim)
		c.counters.incrRecycled()
	}
}

// ReleasePages walks the dnext list, freeing never-attached pages directly
// (block == InvalidBlock, e.g. freshly composed write buffers) and routing
// attached pages through ReleasePage(read=false). This is lc_releasePages.
func (c *Cache) ReleasePages(head *Page) {
	for page := head; page != nil; {
		next := page.dnext
		page.dnext = nil

		if page.block == InvalidBlock {
			if page.refcount != 1 {
				panic("pagecache: ReleasePages found detached page with refcount != 1")
			}
			page.refcount = 0
			freePage(c.counters, page)
		} else {
			c.ReleasePage(page, false)
		}
		page = next
	}
}

// ReleaseReadPages releases a batch of pages that were read together,
// incrementing each one's hitcount. This is lc_releaseReadPages.
func (c *Cache) ReleaseReadPages(pages []*Page) {
	for _, p := range pages {
		c.ReleasePage(p, true)
	}
}

// GetPageNew looks up or inserts block (without reading it), asserts the
// page is freshly owned (refcount == 1), frees any prior data buffer, takes
// ownership of data, and marks it valid with hitcount reset. Used for
// overwrite-in-place writes. This is lc_getPageNew.
func (c *Cache) GetPageNew(block uint64, data []byte) (*Page, error) {
	page, err := c.GetPage(block, false)
	if err != nil {
		return nil, err
	}
	if page.refcount != 1 {
		panic("pagecache: GetPageNew on page with refcount != 1")
	}
	if page.data != nil {
		c.alloc.FreePage(page.data)
	}
	page.data = data
	page.dvalid = true
	page.hitcount = 0
	return page, nil
}

// GetPageNoBlock returns a fresh detached page holding data, linked via
// dnext to prev, for composing a contiguous write run before block numbers
// are chosen. This is lc_getPageNoBlock.
func (c *Cache) GetPageNoBlock(data []byte, prev *Page) *Page {
	page := newPage(c.counters)
	page.data = data
	page.dvalid = true
	page.dnext = prev
	return page
}

// GetPageNewData looks up or inserts block (without reading it), ensures a
// data buffer exists for the caller to copy into, and resets hitcount. This
// is lc_getPageNewData.
func (c *Cache) GetPageNewData(block uint64) (*Page, error) {
	page, err := c.GetPage(block, false)
	if err != nil {
		return nil, err
	}
	if page.data == nil {
		page.data = c.alloc.AllocPage()
	}
	page.hitcount = 0
	return page, nil
}
