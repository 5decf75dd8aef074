package blockdev

import (
	"sync"

	"github.com/cockroachdb/errors"
)

type InMemoryDevice struct {
	blocks    map[int][]byte
	blockSize int
	mu        sync.RWMutex
	closed    bool
	flushes   int
}

func NewInMemoryDevice(blockSize int) *InMemoryDevice {
	return &InMemoryDevice{
		blocks:    make(map[int][]byte),
		blockSize: blockSize,
	}
}

func (d *InMemoryDevice) BlockSize() int {
	return d.blockSize
}

func (d *InMemoryDevice) ReadBlock(idx int, buf []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if err := checkRead(d.blockSize, idx, buf); err != nil {
		return err
	}

	data, ok := d.blocks[idx]
	if !ok {
		clear(buf)
		return nil
	}
	copy(buf, data)
	return nil
}

func (d *InMemoryDevice) WriteBlock(idx int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := checkWrite(d.blockSize, idx, buf); err != nil {
		return err
	}

	// Keep a private copy so the caller can reuse buf
	dest := make([]byte, d.blockSize)
	copy(dest, buf)
	d.blocks[idx] = dest
	return nil
}

func (d *InMemoryDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.flushes++
	return nil
}

func (d *InMemoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.blocks = nil
	d.closed = true
	return nil
}

// NumBlocks returns one past the highest block index ever written.
func (d *InMemoryDevice) NumBlocks() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for idx := range d.blocks {
		if idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

// Flushes counts successful Flush calls.
func (d *InMemoryDevice) Flushes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.flushes
}

// Snapshot returns a deep copy of the device contents.
func (d *InMemoryDevice) Snapshot() (*InMemoryDevice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, errors.Wrap(ErrClosed, "snapshot")
	}
	cp := NewInMemoryDevice(d.blockSize)
	for idx, data := range d.blocks {
		cp.blocks[idx] = append([]byte(nil), data...)
	}
	return cp, nil
}
