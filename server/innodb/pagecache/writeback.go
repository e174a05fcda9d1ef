package pagecache

import (
	"sync"

	"github.com/zhukovaskychina/lcfs-pagecache/logger"
)

// Writeback is the per-filesystem dirty-page pipeline from spec.md §4.8: a
// dirty list guarded by plock, a cluster-size threshold that triggers a
// scatter/gather flush, and the unmount-time flush/invalidate paths. One
// Writeback exists per mounted filesystem; it shares the Cache that owns the
// pages it tracks.
type Writeback struct {
	cache       *Cache
	device      BlockDevice
	extents     ExtentManager
	clusterSize uint64

	plock   sync.Mutex
	dpages  *Page
	dpcount uint64

	alock   sync.Mutex
	removed bool
}

// NewWriteback wires a dirty-page pipeline to the cache that owns its pages
// and the block device it flushes to. extents may be nil if this filesystem
// has no extent manager to notify at unmount.
func NewWriteback(cache *Cache, device BlockDevice, extents ExtentManager, clusterSize uint64) *Writeback {
	return &Writeback{
		cache:       cache,
		device:      device,
		extents:     extents,
		clusterSize: clusterSize,
	}
}

// SetRemoved marks the filesystem as removed, matching fs_removed in the
// source: once set, FlushDirtyPages skips the write-back step (blocks will
// not be returned to the free pool either, handled by the caller's extent
// manager).
func (w *Writeback) SetRemoved(removed bool) {
	w.alock.Lock()
	defer w.alock.Unlock()
	w.removed = removed
}

// DirtyPageCount returns the number of pages currently queued for
// writeback, for tests and monitoring.
func (w *Writeback) DirtyPageCount() uint64 {
	w.plock.Lock()
	defer w.plock.Unlock()
	return w.dpcount
}

// AddPageForWriteBack splices head..tail onto the dirty list under plock and
// adds pcount to dpcount. If dpcount reaches clusterSize, the whole list is
// detached and flushed as one cluster. This is lc_addPageForWriteBack; the
// source's `assert(count < LC_CLUSTER_SIZE)` guarding a local counter
// initialized to 0 is dead code (spec.md §9) and is not ported.
func (w *Writeback) AddPageForWriteBack(head, tail *Page, pcount uint64) error {
	w.plock.Lock()
	tail.dnext = w.dpages
	w.dpages = head
	w.dpcount += pcount

	var flushHead *Page
	var flushCount uint64
	if w.dpcount >= w.clusterSize {
		flushHead = w.dpages
		flushCount = w.dpcount
		w.dpages = nil
		w.dpcount = 0
	}
	w.plock.Unlock()

	if flushCount > 0 {
		return w.flushPageCluster(flushHead, flushCount)
	}
	return nil
}

// flushPageCluster writes a run of dirty pages to disk honoring the
// ordering contract from spec.md §4.8: the incoming dnext list is in
// reverse block order (most recently queued at head), so the flusher
// refills a scatter/gather vector back-to-front, ending up in ascending
// block order, splitting into a new write whenever two adjacent list
// entries are not exactly one block apart. Afterward the list is always
// handed to ReleasePages, even on a write failure -- unlike the source
// (which escalates I/O failure to process abort and never reaches the
// release call), returning an error here instead of aborting means the
// pages must still be released to avoid leaking references (see
// SPEC_FULL.md §9).
func (w *Writeback) flushPageCluster(head *Page, count uint64) error {
	writeErr := w.writeCluster(head, count)
	if writeErr != nil {
		logger.Errorf("pagecache: flushPageCluster write failed: %v", writeErr)
	}
	w.cache.ReleasePages(head)
	return writeErr
}

func (w *Writeback) writeCluster(head *Page, count uint64) error {
	if count == 0 {
		return nil
	}
	if count == 1 {
		return w.device.WriteBlock(head.data, head.block)
	}

	n := int(count)
	iovec := make([][]byte, n)
	var block uint64
	bcount := 0
	page := head
	for i, j := 0, n-1; i < n; i, j = i+1, j-1 {
		if i > 0 && page.block+1 != block {
			if err := w.device.WriteBlocks(iovec[j+1:j+1+bcount], block); err != nil {
				return err
			}
			bcount = 0
		}
		iovec[j] = page.data
		block = page.block
		bcount++
		page = page.dnext
	}
	if page != nil {
		panic("pagecache: flushPageCluster count does not match dnext chain length")
	}
	return w.device.WriteBlocks(iovec[0:bcount], block)
}

// FlushDirtyPages flushes this filesystem's dirty pages before unmounting
// it. It detaches the dirty list under plock; unless the filesystem was
// removed, the detached pages are flushed, and if it was removed they are
// released without being written. Then, if an extent manager is attached,
// it calls FreeExtents, telling the extent manager whether blocks should
// actually return to the free pool (false iff removed). No extent list is
// detached here: the pending dirty extents are held entirely by the
// ExtentManager. This is lc_flushDirtyPages. Per spec.md §9, this path assumes callers have
// quiesced writeback producers first -- it is not safe against a
// concurrent flusher.
func (w *Writeback) FlushDirtyPages() error {
	hasExtents := false
	if w.extents != nil {
		w.alock.Lock()
		hasExtents = true
		w.alock.Unlock()
	}

	var flushErr error
	w.plock.Lock()
	removed := w.removed
	head := w.dpages
	count := w.dpcount
	w.dpages = nil
	w.dpcount = 0
	w.plock.Unlock()

	if count > 0 && !removed {
		flushErr = w.flushPageCluster(head, count)
	} else if count > 0 {
		w.cache.ReleasePages(head)
	}

	if hasExtents {
		if err := w.extents.FreeExtents(!removed); err != nil {
			if flushErr == nil {
				flushErr = err
			} else {
				logger.Errorf("pagecache: FreeExtents failed after flush error: %v", err)
			}
		}
	}
	return flushErr
}

// InvalidateDirtyPages detaches the dirty list under plock and releases it
// without writing, for a filesystem being torn down with no commit. This is
// lc_invalidateDirtyPages.
func (w *Writeback) InvalidateDirtyPages() {
	w.plock.Lock()
	head := w.dpages
	w.dpages = nil
	w.dpcount = 0
	w.plock.Unlock()

	if head != nil {
		w.cache.ReleasePages(head)
	}
}
