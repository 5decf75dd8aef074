package blockdev

import (
	"bytes"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cockroachdb/errors"
)

const testBlockSize = 512

func openTestDevices(t *testing.T) map[string]Device {
	t.Helper()

	fileDev, err := OpenFileDevice(filepath.Join(t.TempDir(), "dev.db"), testBlockSize)
	if err != nil {
		t.Fatalf("Failed to open file device: %v", err)
	}
	t.Cleanup(func() { fileDev.Close() })

	cached, err := NewCachedDevice(NewInMemoryDevice(testBlockSize), CacheOptions{MaxBlocks: 16})
	if err != nil {
		t.Fatalf("Failed to create cached device: %v", err)
	}
	t.Cleanup(func() { cached.Close() })

	return map[string]Device{
		"memory": NewInMemoryDevice(testBlockSize),
		"file":   fileDev,
		"cached": cached,
	}
}

// TestDeviceReadWrite tests basic block operations on every implementation
func TestDeviceReadWrite(t *testing.T) {
	for name, dev := range openTestDevices(t) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, testBlockSize)

			// Never written blocks read as zero
			buf[0] = 0xff
			if err := dev.ReadBlock(7, buf); err != nil {
				t.Fatalf("Failed to read unwritten block: %v", err)
			}
			if !bytes.Equal(buf, make([]byte, testBlockSize)) {
				t.Errorf("Unwritten block should be zero filled")
			}

			data := make([]byte, testBlockSize)
			copy(data, []byte("Hello, Block Device!"))
			if err := dev.WriteBlock(3, data); err != nil {
				t.Fatalf("Failed to write block: %v", err)
			}
			if err := dev.ReadBlock(3, buf); err != nil {
				t.Fatalf("Failed to read block: %v", err)
			}
			if !bytes.Equal(buf, data) {
				t.Errorf("Data mismatch: expected %q, got %q", data[:20], buf[:20])
			}

			// Overwrite must not be hidden by any cache
			copy(data, []byte("Second version......"))
			if err := dev.WriteBlock(3, data); err != nil {
				t.Fatalf("Failed to overwrite block: %v", err)
			}
			if err := dev.ReadBlock(3, buf); err != nil {
				t.Fatalf("Failed to read block: %v", err)
			}
			if !bytes.Equal(buf, data) {
				t.Errorf("Overwrite not visible: got %q", buf[:20])
			}

			// Short writes are zero padded
			if err := dev.WriteBlock(4, []byte("short")); err != nil {
				t.Fatalf("Failed to write short block: %v", err)
			}
			if err := dev.ReadBlock(4, buf); err != nil {
				t.Fatalf("Failed to read block: %v", err)
			}
			want := make([]byte, testBlockSize)
			copy(want, "short")
			if !bytes.Equal(buf, want) {
				t.Errorf("Short write not padded")
			}

			if err := dev.Flush(); err != nil {
				t.Fatalf("Failed to flush: %v", err)
			}
		})
	}
}

// TestDeviceBlockSizeEnforcement tests that devices enforce the block size
func TestDeviceBlockSizeEnforcement(t *testing.T) {
	for name, dev := range openTestDevices(t) {
		t.Run(name, func(t *testing.T) {
			if err := dev.WriteBlock(1, make([]byte, testBlockSize+1)); !errors.Is(err, ErrBlockSize) {
				t.Errorf("Expected ErrBlockSize for large write, got %v", err)
			}
			if err := dev.ReadBlock(1, make([]byte, testBlockSize-1)); !errors.Is(err, ErrBlockSize) {
				t.Errorf("Expected ErrBlockSize for small read buffer, got %v", err)
			}
			if err := dev.WriteBlock(-1, make([]byte, testBlockSize)); !errors.Is(err, ErrBadIndex) {
				t.Errorf("Expected ErrBadIndex, got %v", err)
			}
		})
	}
}

// TestFileDevicePersistence closes and reopens a file device
func TestFileDevicePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	dev, err := OpenFileDevice(path, testBlockSize)
	if err != nil {
		t.Fatalf("Failed to open file device: %v", err)
	}
	data := make([]byte, testBlockSize)
	for i := 0; i < 5; i++ {
		data[0] = byte(i + 1)
		if err := dev.WriteBlock(i, data); err != nil {
			t.Fatalf("Failed to write block %d: %v", i, err)
		}
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := dev.ReadBlock(0, data); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}

	reopened, err := OpenFileDevice(path, testBlockSize)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer reopened.Close()

	n, err := reopened.NumBlocks()
	if err != nil {
		t.Fatalf("NumBlocks failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 blocks, got %d", n)
	}
	for i := 0; i < 5; i++ {
		if err := reopened.ReadBlock(i, data); err != nil {
			t.Fatalf("Failed to read block %d: %v", i, err)
		}
		if data[0] != byte(i+1) {
			t.Errorf("Block %d: expected tag %d, got %d", i, i+1, data[0])
		}
	}
}

// TestFileDeviceSingleWriter checks the exclusive lock
func TestFileDeviceSingleWriter(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("no advisory file locks on " + runtime.GOOS)
	}
	path := filepath.Join(t.TempDir(), "locked.db")

	first, err := OpenFileDevice(path, testBlockSize)
	if err != nil {
		t.Fatalf("Failed to open file device: %v", err)
	}

	if _, err := OpenFileDevice(path, testBlockSize); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked for second writer, got %v", err)
	}

	first.Close()
	second, err := OpenFileDevice(path, testBlockSize)
	if err != nil {
		t.Fatalf("Reopen after close should succeed: %v", err)
	}
	second.Close()
}

func TestInMemoryDeviceSnapshot(t *testing.T) {
	dev := NewInMemoryDevice(testBlockSize)
	data := make([]byte, testBlockSize)
	data[0] = 1
	if err := dev.WriteBlock(2, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := dev.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	data[0] = 2
	if err := dev.WriteBlock(2, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, testBlockSize)
	if err := snap.ReadBlock(2, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf[0] != 1 {
		t.Errorf("Snapshot should keep the old block, got tag %d", buf[0])
	}
	if dev.NumBlocks() != 3 {
		t.Errorf("Expected NumBlocks 3, got %d", dev.NumBlocks())
	}
}

func TestCachedDevice(t *testing.T) {
	inner := NewInMemoryDevice(testBlockSize)
	cached, err := NewCachedDevice(inner, CacheOptions{MaxBlocks: 16, Metrics: true})
	if err != nil {
		t.Fatalf("Failed to create cached device: %v", err)
	}
	defer cached.Close()

	v1 := bytes.Repeat([]byte{1}, testBlockSize)
	if err := inner.WriteBlock(3, v1); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, testBlockSize)
	if err := cached.ReadBlock(3, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	cached.cache.Wait()

	// Change the block behind the cache: a hit still returns the cached copy.
	if err := inner.WriteBlock(3, bytes.Repeat([]byte{9}, testBlockSize)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cached.ReadBlock(3, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, v1) {
		t.Errorf("Second read should be served from the cache")
	}
	if ratio := cached.HitRatio(); ratio <= 0 {
		t.Errorf("Expected a cache hit, hit ratio %.2f", ratio)
	}

	v2 := bytes.Repeat([]byte{2}, testBlockSize)
	if err := cached.WriteBlock(3, v2); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cached.ReadBlock(3, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, v2) {
		t.Errorf("Read after write returned stale bytes")
	}
	got := make([]byte, testBlockSize)
	if err := inner.ReadBlock(3, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, v2) {
		t.Errorf("Write did not reach the wrapped device")
	}
}
