package pagecache

import (
	"fmt"
	"sync"
)

// fakeDevice is an in-memory BlockDevice used by the test suite, recording
// every read/write call so tests can assert on call counts and ordering.
type fakeDevice struct {
	mu sync.Mutex

	blocks map[uint64][]byte

	readCalls  []uint64
	writeCalls []writeCall

	failRead  map[uint64]bool
	failWrite bool
}

type writeCall struct {
	startBlock uint64
	blocks     []uint64
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		blocks:   make(map[uint64][]byte),
		failRead: make(map[uint64]bool),
	}
}

func (d *fakeDevice) ReadBlock(block uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readCalls = append(d.readCalls, block)
	if d.failRead[block] {
		return fmt.Errorf("fakeDevice: simulated read failure for block %d", block)
	}
	data, ok := d.blocks[block]
	if !ok {
		// Unwritten blocks read back as zero, matching a fresh device.
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, data)
	return nil
}

func (d *fakeDevice) WriteBlock(buf []byte, block uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrite {
		return fmt.Errorf("fakeDevice: simulated write failure")
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.blocks[block] = cp
	d.writeCalls = append(d.writeCalls, writeCall{startBlock: block, blocks: []uint64{block}})
	return nil
}

func (d *fakeDevice) WriteBlocks(iovec [][]byte, startBlock uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrite {
		return fmt.Errorf("fakeDevice: simulated write failure")
	}
	blocks := make([]uint64, len(iovec))
	for i, buf := range iovec {
		block := startBlock + uint64(i)
		cp := make([]byte, len(buf))
		copy(cp, buf)
		d.blocks[block] = cp
		blocks[i] = block
	}
	d.writeCalls = append(d.writeCalls, writeCall{startBlock: startBlock, blocks: blocks})
	return nil
}

func (d *fakeDevice) readCount(block uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.readCalls {
		if b == block {
			n++
		}
	}
	return n
}

// fakeExtentManager is a minimal ExtentManager recording FreeExtents calls.
type fakeExtentManager struct {
	mu    sync.Mutex
	calls []bool
}

func (m *fakeExtentManager) FreeExtents(returnToPool bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, returnToPool)
	return nil
}

func testConfig(shardCount uint32) Config {
	return Config{
		BlockSize:   64,
		PageMax:     100,
		ClusterSize: 4,
		ShardCount:  shardCount,
	}
}
