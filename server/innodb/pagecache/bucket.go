package pagecache

import "sync"

// bucket is one hash chain of pages guarded by an independent lock, matching
// the teacher's per-shard locking style (each BufferPool shard would carry
// its own sync.RWMutex) but reshaped into the intrusive singly-linked chain
// spec.md §3 specifies: pcount must always equal the chain length rooted at
// head.
type bucket struct {
	mu    sync.Mutex
	head  *Page
	pcount uint64
}

// find scans the chain for a page with the given block, returning it or nil.
// Must be called with b.mu held.
func (b *bucket) find(block uint64) *Page {
	for p := b.head; p != nil; p = p.cnext {
		if p.block == block {
			return p
		}
	}
	return nil
}

// push links p at the head of the chain and increments pcount. Must be
// called with b.mu held.
func (b *bucket) push(p *Page) {
	p.cnext = b.head
	b.head = p
	b.pcount++
}

// unlink removes p from the chain, given its predecessor (nil if p is head).
// Must be called with b.mu held.
func (b *bucket) unlink(prev, p *Page) {
	if prev == nil {
		b.head = p.cnext
	} else {
		prev.cnext = p.cnext
	}
	p.cnext = nil
	b.pcount--
}

// drain frees every page in the chain regardless of refcount (refcount is
// guaranteed zero by the caller's quiescence contract), clearing block,
// cnext and dvalid before each free, and returns the count freed. Mirrors
// lc_destroy_pages' per-bucket walk.
func (b *bucket) drain(counters *Counters) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var count uint64
	for p := b.head; p != nil; {
		next := p.cnext
		p.block = InvalidBlock
		p.cnext = nil
		p.dvalid = false
		p.refcount = 0
		freePage(counters, p)
		count++
		p = next
	}
	if count != b.pcount {
		panic("pagecache: bucket pcount does not match chain length at teardown")
	}
	b.head = nil
	b.pcount = 0
	return count
}
