package blockdev

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) *FileDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.img")
	dev, err := OpenFileDevice(path, 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestFileDevice_RoundTrip(t *testing.T) {
	dev := newTestDevice(t)

	want := make([]byte, 64)
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, dev.WriteBlock(want, 3))

	got := make([]byte, 64)
	require.NoError(t, dev.ReadBlock(3, got))
	assert.Equal(t, want, got)
}

func TestFileDevice_UnwrittenBlockReadsAsZero(t *testing.T) {
	dev := newTestDevice(t)

	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xAA
	}
	require.NoError(t, dev.ReadBlock(9, buf))

	for _, b := range buf {
		assert.EqualValues(t, 0, b)
	}
}

func TestFileDevice_WriteBlocksScatterGather(t *testing.T) {
	dev := newTestDevice(t)

	iovec := make([][]byte, 3)
	for i := range iovec {
		buf := make([]byte, 64)
		for j := range buf {
			buf[j] = byte(i + 1)
		}
		iovec[i] = buf
	}
	require.NoError(t, dev.WriteBlocks(iovec, 5))

	for i := 0; i < 3; i++ {
		got := make([]byte, 64)
		require.NoError(t, dev.ReadBlock(uint64(5+i), got))
		assert.Equal(t, iovec[i], got)
	}
}

func TestFileDevice_DetectsCorruption(t *testing.T) {
	dev := newTestDevice(t)

	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, dev.WriteBlock(buf, 1))

	// Corrupt the payload directly on disk, leaving the checksum stale.
	slot := make([]byte, dev.slotSize())
	_, err := dev.f.ReadAt(slot, dev.offset(1))
	require.NoError(t, err)
	slot[0] ^= 0xFF
	_, err = dev.f.WriteAt(slot, dev.offset(1))
	require.NoError(t, err)

	got := make([]byte, 64)
	err = dev.ReadBlock(1, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestFileDevice_RejectsWrongBufferSize(t *testing.T) {
	dev := newTestDevice(t)

	err := dev.WriteBlock(make([]byte, 32), 0)
	assert.Error(t, err)

	err = dev.ReadBlock(0, make([]byte, 32))
	assert.Error(t, err)
}
