package pagecache

import "sync"

// Page is the cached unit: a buffer plus bookkeeping, grounded in the
// teacher's BufferPage control block but reshaped around spec.md §3's
// intrusive hash-chain/dirty-list links instead of a separate BufferBlock.
//
// A page either lives in exactly one bucket (block != InvalidBlock, reachable
// from that bucket's head via cnext) or is detached (block == InvalidBlock,
// cnext == nil). refcount is mutated only under the owning bucket's lock, or
// before publication while the page is still private to its allocator.
type Page struct {
	block uint64

	data   []byte
	dvalid bool

	refcount uint32
	hitcount uint64

	cnext *Page // hash-chain successor; owned by the bucket
	dnext *Page // dirty/release-list successor; owned by the transient list

	dlock sync.Mutex // guards the single-reader disk load
}

// Block returns the page's current block id, or InvalidBlock if detached.
func (p *Page) Block() uint64 { return p.block }

// Data returns the page's data buffer. It is only meaningful when Valid()
// is true.
func (p *Page) Data() []byte { return p.data }

// Valid reports whether Data() reflects current on-disk (or caller-supplied)
// contents.
func (p *Page) Valid() bool { return p.dvalid }

// RefCount returns the page's current reference count.
func (p *Page) RefCount() uint32 { return p.refcount }

// HitCount returns the page's current hit count.
func (p *Page) HitCount() uint64 { return p.hitcount }

// newPage allocates a fresh, detached page with refcount 1 and no data
// buffer, and bumps the global page count. This is lc_newPage: pages are
// never pooled, allocation is direct.
func newPage(counters *Counters) *Page {
	counters.incrPageCount()
	return &Page{
		block:    InvalidBlock,
		refcount: 1,
	}
}

// freePage asserts the full detachment invariant from spec.md §3 and
// destroys the page, decrementing the global page count. Callers must have
// already released p.data's backing allocation responsibility; freePage nils
// it out here since the page itself owned it uniquely.
func freePage(counters *Counters, p *Page) {
	if p.refcount != 0 {
		panic("pagecache: freePage on page with non-zero refcount")
	}
	if p.block != InvalidBlock {
		panic("pagecache: freePage on attached page")
	}
	if p.cnext != nil {
		panic("pagecache: freePage on page still linked in a hash chain")
	}
	if p.dnext != nil {
		panic("pagecache: freePage on page still linked in a dirty/release list")
	}
	p.data = nil
	p.dvalid = false
	counters.decrPageCount()
}
