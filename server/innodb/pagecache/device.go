package pagecache

// BlockDevice is the external collaborator toward the block device driver
// (spec.md §6). All three methods are synchronous; the cache never holds a
// bucket lock while calling them. ReadBlock is called with the page's dlock
// held, so that exactly one caller loads a given page.
type BlockDevice interface {
	// ReadBlock fills buf (exactly Config.BlockSize bytes) with the
	// contents of block.
	ReadBlock(block uint64, buf []byte) error

	// WriteBlock writes buf to block as a single-block write.
	WriteBlock(buf []byte, block uint64) error

	// WriteBlocks issues one scatter/gather write of len(iovec) contiguous
	// blocks starting at startBlock. Buffers are already in ascending
	// block order.
	WriteBlocks(iovec [][]byte, startBlock uint64) error
}

// Allocator is the external collaborator toward the allocator (spec.md §6),
// scoped to what the cache needs: block-aligned page-data buffers. The
// teacher's memory-class tagging (page metadata vs. page data vs. bucket
// array) exists to steer a custom arena allocator; Go's runtime allocator
// has no equivalent need, so only the data-buffer class is modeled here (see
// DESIGN.md).
type Allocator interface {
	// AllocPage returns a zeroed, block-aligned buffer of size
	// Config.BlockSize.
	AllocPage() []byte

	// FreePage returns a buffer previously obtained from AllocPage.
	FreePage(buf []byte)
}

// ExtentManager is the external collaborator toward the extent manager
// (spec.md §6), invoked only from the unmount flush path.
type ExtentManager interface {
	// FreeExtents frees the filesystem's dirty extents. returnToPool is
	// false iff the filesystem was removed (its blocks must not go back
	// to the free pool).
	FreeExtents(returnToPool bool) error
}

// simpleAllocator is the default Allocator: it has no memory-class arenas,
// it just allocates plain Go byte slices. Sufficient for a module with no
// custom arena allocator of its own; see DESIGN.md for why no third-party
// allocator library is used here. Its buffers are zeroed and BlockSize bytes
// long; they are not aligned to a block boundary beyond whatever alignment
// the Go runtime happens to give them.
type simpleAllocator struct {
	blockSize uint32
}

func newSimpleAllocator(blockSize uint32) *simpleAllocator {
	return &simpleAllocator{blockSize: blockSize}
}

func (a *simpleAllocator) AllocPage() []byte {
	return make([]byte, a.blockSize)
}

func (a *simpleAllocator) FreePage([]byte) {}
