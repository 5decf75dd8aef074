package blockstore

import (
	"bytes"
	"encoding/binary"
	"maps"
	"math"
	"slices"
	"testing"

	blockdev "ShadowDB/blockdevice"

	"github.com/cockroachdb/errors"
)

const testBlockSize = 512

func block(tag string) []byte {
	b := make([]byte, testBlockSize)
	copy(b, tag)
	return b
}

func openStore(t *testing.T, dev blockdev.Device) *Store {
	t.Helper()
	s, err := Open(dev)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func mustValidate(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func readTag(t *testing.T, s *Store, l Addr) string {
	t.Helper()
	data, err := s.Read(l)
	if err != nil {
		t.Fatalf("Read(%d) failed: %v", l, err)
	}
	return string(bytes.TrimRight(data, "\x00"))
}

func TestAllocateReadWrite(t *testing.T) {
	s := openStore(t, blockdev.NewInMemoryDevice(testBlockSize))

	for i, tag := range []string{"one", "two", "three"} {
		l, err := s.Allocate(block(tag))
		if err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
		if l != Addr(i+1) {
			t.Errorf("Expected logical address %d, got %d", i+1, l)
		}
	}
	mustValidate(t, s)

	if got := readTag(t, s, 2); got != "two" {
		t.Errorf("Read(2) = %q, want %q", got, "two")
	}
	if err := s.Write(2, block("TWO")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readTag(t, s, 2); got != "TWO" {
		t.Errorf("Read(2) after write = %q, want %q", got, "TWO")
	}
	if !s.Has(3) || s.Has(4) {
		t.Errorf("Has reports wrong membership")
	}
	mustValidate(t, s)
}

func TestUnmappedAddress(t *testing.T) {
	s := openStore(t, blockdev.NewInMemoryDevice(testBlockSize))
	l, err := s.Allocate(block("x"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := s.Free(l); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	if _, err := s.Read(l); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("Read of freed block: expected ErrAddressNotFound, got %v", err)
	}
	if err := s.Write(42, block("y")); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("Write of unknown block: expected ErrAddressNotFound, got %v", err)
	}
	if err := s.Free(l); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("Double free: expected ErrAddressNotFound, got %v", err)
	}
	if err := s.Write(l, make([]byte, testBlockSize+1)); !errors.Is(err, ErrBlockSize) {
		t.Errorf("Oversized write: expected ErrBlockSize, got %v", err)
	}
	mustValidate(t, s)
}

func TestCopyOnWriteRelocatesOnlyOncePerGeneration(t *testing.T) {
	dev := blockdev.NewInMemoryDevice(testBlockSize)
	s := openStore(t, dev)

	l, err := s.Allocate(block("v1"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	committedPhys := s.Mappings()[l]

	if err := s.Write(l, block("v2")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	firstPhys := s.Mappings()[l]
	if firstPhys == committedPhys {
		t.Fatalf("First write after commit should relocate, still at physical %d", firstPhys)
	}

	if err := s.Write(l, block("v3")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if p := s.Mappings()[l]; p != firstPhys {
		t.Errorf("Second write in the same generation moved the block from %d to %d", firstPhys, p)
	}

	// The committed copy is untouched on the device
	raw := make([]byte, testBlockSize)
	if err := dev.ReadBlock(int(committedPhys), raw); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if !bytes.Equal(raw, block("v1")) {
		t.Errorf("Committed physical block was overwritten")
	}
	if !slices.Contains(s.FreeBlocks(), committedPhys) {
		t.Errorf("Old physical %d should be on the free list", committedPhys)
	}
	if s.Stats().SafeFree != 0 {
		t.Errorf("Old physical must not be reusable before commit, safe free = %d", s.Stats().SafeFree)
	}
	mustValidate(t, s)
}

func TestAllocationAvoidsCommittedBlocks(t *testing.T) {
	s := openStore(t, blockdev.NewInMemoryDevice(testBlockSize))

	a, _ := s.Allocate(block("a"))
	b, _ := s.Allocate(block("b"))
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	committed := s.Mappings()

	if err := s.Free(a); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	c, err := s.Allocate(block("c"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for _, p := range committed {
		if s.Mappings()[c] == p {
			t.Fatalf("New block reused physical %d that the committed image still references", p)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// After the commit the physical block of a is safe to reuse.
	freeBefore := s.FreeBlocks()
	d, err := s.Allocate(block("d"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if p := s.Mappings()[d]; p != committed[a] || !slices.Contains(freeBefore, p) {
		t.Errorf("Expected d to reuse physical %d of a, got %d", committed[a], p)
	}
	if got := readTag(t, s, b); got != "b" {
		t.Errorf("Read(b) = %q", got)
	}
	mustValidate(t, s)
}

func TestFreeOfBlockFreeInCommittedIsSafeAgain(t *testing.T) {
	s := openStore(t, blockdev.NewInMemoryDevice(testBlockSize))
	a, _ := s.Allocate(block("a"))
	_, _ = s.Allocate(block("b"))
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := s.Free(a); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	safeBefore := s.Stats().SafeFree
	if safeBefore == 0 {
		t.Fatalf("Expected safe free blocks after commit")
	}

	c, _ := s.Allocate(block("c"))
	if s.Stats().SafeFree != safeBefore-1 {
		t.Fatalf("Allocate should consume a safe block")
	}
	if err := s.Free(c); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if s.Stats().SafeFree != safeBefore {
		t.Errorf("Block free in the committed image should become safe again, got %d want %d", s.Stats().SafeFree, safeBefore)
	}
	mustValidate(t, s)
}

func TestBlockGrownAndFreedInOneGenerationIsReused(t *testing.T) {
	s := openStore(t, blockdev.NewInMemoryDevice(testBlockSize))
	if _, err := s.Allocate(block("a")); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	b, err := s.Allocate(block("b"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	grown := s.Mappings()[b]
	maxBlocks := s.Stats().MaxBlocks
	if err := s.Free(b); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	mustValidate(t, s)

	c, err := s.Allocate(block("c"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if p := s.Mappings()[c]; p != grown {
		t.Errorf("Expected physical %d to be reused, got %d", grown, p)
	}
	if got := s.Stats().MaxBlocks; got != maxBlocks {
		t.Errorf("Store grew to %d blocks, want %d", got, maxBlocks)
	}
	mustValidate(t, s)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if got := readTag(t, s, c); got != "c" {
		t.Errorf("Expected %q, got %q", "c", got)
	}
	mustValidate(t, s)
}

func TestCommitAndReopen(t *testing.T) {
	// 32-byte blocks hold 3 dict pairs, so this spreads both arrays over long chains
	dev := blockdev.NewInMemoryDevice(32)
	s := openStore(t, dev)

	var addrs []Addr
	for i := 0; i < 50; i++ {
		l, err := s.Allocate([]byte{byte(i)})
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		addrs = append(addrs, l)
	}
	for i, l := range addrs {
		if i%3 == 0 {
			if err := s.Free(l); err != nil {
				t.Fatalf("Free failed: %v", err)
			}
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	mustValidate(t, s)

	reopened := openStore(t, dev)
	mustValidate(t, reopened)
	if !maps.Equal(s.Mappings(), reopened.Mappings()) {
		t.Errorf("Mapping differs after reopen")
	}
	if !slices.Equal(s.FreeBlocks(), reopened.FreeBlocks()) {
		t.Errorf("Free list differs after reopen: %v vs %v", s.FreeBlocks(), reopened.FreeBlocks())
	}
	if s.Stats() != reopened.Stats() {
		t.Errorf("Stats differ after reopen: %+v vs %+v", s.Stats(), reopened.Stats())
	}
	for i, l := range addrs {
		if i%3 == 0 {
			continue
		}
		data, err := reopened.Read(l)
		if err != nil {
			t.Fatalf("Read(%d) after reopen failed: %v", l, err)
		}
		if data[0] != byte(i) {
			t.Errorf("Read(%d) = %d, want %d", l, data[0], i)
		}
	}

	// A second round of commits keeps reusing and releasing array blocks
	for i := 0; i < 5; i++ {
		if _, err := reopened.Allocate([]byte{0xee}); err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
		if err := reopened.Commit(); err != nil {
			t.Fatalf("Commit %d failed: %v", i, err)
		}
		mustValidate(t, reopened)
	}
	again := openStore(t, dev)
	if !maps.Equal(again.Mappings(), reopened.Mappings()) {
		t.Errorf("Mapping differs after repeated commits")
	}
}

func TestCommitWithoutChangesIsNoop(t *testing.T) {
	dev := blockdev.NewInMemoryDevice(testBlockSize)
	s := openStore(t, dev)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if dev.NumBlocks() != 0 || dev.Flushes() != 0 {
		t.Errorf("Clean commit should not touch the device")
	}
}

func TestRollbackRestoresCommittedImage(t *testing.T) {
	dev := blockdev.NewInMemoryDevice(testBlockSize)
	s := openStore(t, dev)

	a, _ := s.Allocate(block("a"))
	b, _ := s.Allocate(block("b"))
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	committed := s.Mappings()
	committedFree := s.FreeBlocks()
	committedStats := s.Stats()

	if err := s.Write(a, block("A")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Free(b); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if _, err := s.Allocate(block("c")); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	// A store opened on the device right now sees only the committed image
	crashed, err := dev.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	recovered := openStore(t, crashed)
	if !maps.Equal(recovered.Mappings(), committed) {
		t.Errorf("Uncommitted changes leaked into the on-disk image")
	}
	if got := readTag(t, recovered, a); got != "a" {
		t.Errorf("Recovered Read(a) = %q, want %q", got, "a")
	}

	flushes := dev.Flushes()
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if dev.Flushes() != flushes+1 {
		t.Errorf("Rollback should flush the device")
	}
	if s.Dirty() {
		t.Errorf("Store should be clean after rollback")
	}
	if !maps.Equal(s.Mappings(), committed) {
		t.Errorf("Rollback mapping = %v, want %v", s.Mappings(), committed)
	}
	if !slices.Equal(s.FreeBlocks(), committedFree) {
		t.Errorf("Rollback free list = %v, want %v", s.FreeBlocks(), committedFree)
	}
	if s.Stats().AddressSequence != committedStats.AddressSequence {
		t.Errorf("Rollback should restore the address sequence")
	}
	if got := readTag(t, s, a); got != "a" {
		t.Errorf("Read(a) after rollback = %q, want %q", got, "a")
	}
	if got := readTag(t, s, b); got != "b" {
		t.Errorf("Read(b) after rollback = %q, want %q", got, "b")
	}
	mustValidate(t, s)

	fresh := openStore(t, dev)
	if !maps.Equal(fresh.Mappings(), s.Mappings()) {
		t.Errorf("Reopened store disagrees with rolled back store")
	}
}

func putHeader(t *testing.T, dev blockdev.Device, vals ...int32) {
	t.Helper()
	page := make([]byte, dev.BlockSize())
	for i, v := range vals {
		binary.BigEndian.PutUint32(page[4*i:], uint32(v))
	}
	if err := dev.WriteBlock(0, page); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
}

func putArray(t *testing.T, dev blockdev.Device, idx int, count, next int32, payload ...int32) {
	t.Helper()
	page := make([]byte, dev.BlockSize())
	binary.BigEndian.PutUint32(page[0:], uint32(count))
	binary.BigEndian.PutUint32(page[4:], uint32(next))
	for i, v := range payload {
		binary.BigEndian.PutUint32(page[8+4*i:], uint32(v))
	}
	if err := dev.WriteBlock(idx, page); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
}

func TestOpenDetectsCorruption(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dev blockdev.Device)
	}{
		{"block count mismatch", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 5, 0, 0, 0)
		}},
		{"negative max blocks", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, -3, 0, 0, 0)
		}},
		{"array head out of range", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 2, 1, 9, 0)
		}},
		{"chain loop", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 3, 2, 1, 0)
			putArray(t, dev, 1, 2, 2, 1, 1)
			putArray(t, dev, 2, 2, 1, 2, 2)
		}},
		{"count over capacity", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 2, 1, 1, 0)
			putArray(t, dev, 1, 1000, 0)
		}},
		{"logical past sequence", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 2, 1, 1, 0)
			putArray(t, dev, 1, 2, 0, 7, 1)
		}},
		{"physical both mapped and free", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 3, 1, 1, 2)
			putArray(t, dev, 1, 2, 0, 1, 1)
			putArray(t, dev, 2, 1, 0, 1)
		}},
		{"array block not mapped", func(t *testing.T, dev blockdev.Device) {
			putHeader(t, dev, 3, 1, 1, 2)
			putArray(t, dev, 1, 2, 0, 1, 2)
			putArray(t, dev, 2, 1, 0, 1)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dev := blockdev.NewInMemoryDevice(testBlockSize)
			tc.setup(t, dev)
			s, err := Open(dev)
			if !errors.Is(err, ErrCorrupted) {
				t.Fatalf("Expected ErrCorrupted, got %v", err)
			}
			if s != nil {
				t.Errorf("No store may be returned for a corrupted device")
			}
		})
	}
}

func TestOpenRejectsTinyBlocks(t *testing.T) {
	if _, err := Open(blockdev.NewInMemoryDevice(16)); err == nil {
		t.Errorf("Expected error for 16-byte blocks")
	}
}

func TestAddressSequenceExhaustion(t *testing.T) {
	dev := blockdev.NewInMemoryDevice(testBlockSize)
	putHeader(t, dev, 1, math.MaxInt32-1, 0, 0)
	s := openStore(t, dev)

	l, err := s.Allocate(block("last"))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if l != math.MaxInt32 {
		t.Errorf("Expected logical %d, got %d", int32(math.MaxInt32), l)
	}
	if _, err := s.Allocate(block("over")); !errors.Is(err, ErrFull) {
		t.Errorf("Expected ErrFull, got %v", err)
	}
	// Commit needs fresh logical addresses for its chain blocks.
	if err := s.Commit(); !errors.Is(err, ErrFull) {
		t.Errorf("Expected ErrFull from Commit, got %v", err)
	}
}
