package pagecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, shardCount uint32) (*Cache, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	cache, err := NewCache(testConfig(shardCount), dev, nil, nil)
	require.NoError(t, err)
	return cache, dev
}

// Scenario 1: a read-miss on an empty cache drives exactly one ReadBlock
// call and leaves the page attached with refcount 0, hitcount 1 after
// release.
func TestGetPage_ReadMissThenRelease(t *testing.T) {
	cache, dev := newTestCache(t, 4)

	page, err := cache.GetPage(5, true)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.EqualValues(t, 1, page.RefCount())
	assert.True(t, page.Valid())
	assert.Equal(t, 1, dev.readCount(5))

	cache.ReleasePage(page, true)
	assert.EqualValues(t, 0, page.RefCount())
	assert.EqualValues(t, 1, page.HitCount())
	assert.Equal(t, uint64(5), page.Block())

	assert.EqualValues(t, 0, cache.Counters().Hits())
	assert.EqualValues(t, 1, cache.Counters().Misses())
}

// Scenario 2 / lookup idempotence law: two threads racing GetPage(read=true)
// on the same block observe the same page identity, exactly one disk read
// occurs, and the combined refcount is 2.
func TestGetPage_ConcurrentMissesShareOnePage(t *testing.T) {
	cache, dev := newTestCache(t, 4)

	var wg sync.WaitGroup
	pages := make([]*Page, 2)
	errs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			pages[i], errs[i] = cache.GetPage(7, true)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Same(t, pages[0], pages[1])
	assert.Equal(t, 1, dev.readCount(7))
	assert.EqualValues(t, 2, pages[0].RefCount())

	hits := cache.Counters().Hits()
	misses := cache.Counters().Misses()
	assert.EqualValues(t, 2, hits+misses)
	assert.EqualValues(t, 1, misses)
}

// Scenario 3: AddPageBlockHash on a duplicate block invalidates the older
// entry in place without unlinking it; exactly one live chain entry carries
// the block afterward.
func TestAddPageBlockHash_InvalidatesOlderDuplicate(t *testing.T) {
	cache, _ := newTestCache(t, 1)

	p1 := newPage(cache.Counters())
	require.NoError(t, cache.AddPageBlockHash(p1, 9))
	// p1 must be releasable (refcount 0) before a duplicate can invalidate it.
	cache.buckets[cache.hash(9)].mu.Lock()
	p1.refcount = 0
	cache.buckets[cache.hash(9)].mu.Unlock()

	p2 := newPage(cache.Counters())
	require.NoError(t, cache.AddPageBlockHash(p2, 9))

	b := &cache.buckets[cache.hash(9)]
	b.mu.Lock()
	defer b.mu.Unlock()

	liveCount := 0
	foundZombie := false
	for p := b.head; p != nil; p = p.cnext {
		if p == p2 {
			assert.Equal(t, uint64(9), p.block)
			liveCount++
		}
		if p == p1 {
			assert.Equal(t, InvalidBlock, p.block)
			foundZombie = true
		}
	}
	assert.Equal(t, 1, liveCount)
	assert.True(t, foundZombie, "invalidated duplicate must remain chained, not unlinked")
}

// Scenario 6: with a per-bucket cap of 2, releasing a third page in a
// single-shard bucket evicts one refcount-0 page, incrementing Recycled and
// leaving pcount at the cap.
func TestReleasePage_EvictsUnderPressure(t *testing.T) {
	cfg := testConfig(1)
	cfg.PageMax = 2 // PageMax / ShardCount(1) == 2
	dev := newFakeDevice()
	cache, err := NewCache(cfg, dev, nil, nil)
	require.NoError(t, err)

	p1, err := cache.GetPage(1, false)
	require.NoError(t, err)
	cache.ReleasePage(p1, false)
	p2, err := cache.GetPage(2, false)
	require.NoError(t, err)
	cache.ReleasePage(p2, false)
	assert.EqualValues(t, 0, cache.Counters().Recycled())

	p3, err := cache.GetPage(3, false)
	require.NoError(t, err)
	cache.ReleasePage(p3, false)
	assert.EqualValues(t, 1, cache.Counters().Recycled())
	assert.EqualValues(t, 2, cache.buckets[0].pcount)
}

// Round-trip law: GetPageNew followed by ReleasePages with no eviction
// pressure leaves a page with the caller's buffer, valid, refcount 0,
// hitcount 0.
func TestGetPageNew_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, 4)

	buf := []byte("round-trip-buffer-contents-0123")
	buf = append(buf, make([]byte, 64-len(buf))...)

	page, err := cache.GetPageNew(11, buf)
	require.NoError(t, err)
	assert.Same(t, &buf[0], &page.data[0])
	assert.True(t, page.Valid())
	assert.EqualValues(t, 0, page.HitCount())

	cache.ReleasePages(page)
	assert.EqualValues(t, 0, page.RefCount())
	assert.Equal(t, uint64(11), page.Block())
}

// GetPage rejects the reserved sentinels.
func TestGetPage_RejectsReservedBlocks(t *testing.T) {
	cache, _ := newTestCache(t, 4)

	_, err := cache.GetPage(0, false)
	assert.Error(t, err)

	_, err = cache.GetPage(InvalidBlock, false)
	assert.Error(t, err)
}

// A read failure leaves the page attached but empty, decrements refcount,
// and does not evict.
func TestGetPage_ReadFailureLeavesPageEmpty(t *testing.T) {
	cache, dev := newTestCache(t, 4)
	dev.failRead[42] = true

	_, err := cache.GetPage(42, true)
	require.Error(t, err)

	b := &cache.buckets[cache.hash(42)]
	b.mu.Lock()
	page := b.find(42)
	b.mu.Unlock()
	require.NotNil(t, page, "page must remain attached after a read failure")
	assert.False(t, page.Valid())
	assert.EqualValues(t, 0, page.RefCount())
}

// Destroy frees every page and, when remove is true, folds the freed count
// into the Reused counter.
func TestDestroy_ReusedCounter(t *testing.T) {
	cache, _ := newTestCache(t, 4)

	p1, err := cache.GetPage(1, false)
	require.NoError(t, err)
	cache.ReleasePage(p1, false)
	p2, err := cache.GetPage(2, false)
	require.NoError(t, err)
	cache.ReleasePage(p2, false)

	cache.Destroy(true)
	assert.EqualValues(t, 2, cache.Counters().Reused())
}
