package blockdev

import (
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// FileDevice implements Device on top of a single regular file.
// Block i lives at byte offset i*BlockSize.
type FileDevice struct {
	file      *os.File
	filePath  string
	blockSize int
	mu        sync.RWMutex
}

// OpenFileDevice opens or creates the file at path and takes an exclusive
// lock on it, so only one writer can hold the store at a time.
func OpenFileDevice(path string, blockSize int) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open device file %s", path)
	}

	if err := lockFile(file); err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "lock device file %s", path)
	}

	return &FileDevice{
		file:      file,
		filePath:  path,
		blockSize: blockSize,
	}, nil
}

func (d *FileDevice) BlockSize() int {
	return d.blockSize
}

func (d *FileDevice) Path() string {
	return d.filePath
}

// ReadBlock reads block idx; bytes past the end of the file read as zero.
func (d *FileDevice) ReadBlock(idx int, buf []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.file == nil {
		return ErrClosed
	}
	if err := checkRead(d.blockSize, idx, buf); err != nil {
		return err
	}

	offset := int64(idx) * int64(d.blockSize)
	n, err := d.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "read block %d", idx)
	}
	clear(buf[n:])
	return nil
}

func (d *FileDevice) WriteBlock(idx int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrClosed
	}
	if err := checkWrite(d.blockSize, idx, buf); err != nil {
		return err
	}

	if len(buf) < d.blockSize {
		padded := make([]byte, d.blockSize)
		copy(padded, buf)
		buf = padded
	}

	offset := int64(idx) * int64(d.blockSize)
	if _, err := d.file.WriteAt(buf, offset); err != nil {
		return errors.Wrapf(err, "write block %d", idx)
	}
	return nil
}

// Flush forces all prior writes to stable storage.
func (d *FileDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrClosed
	}
	if err := d.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", d.filePath)
	}
	return nil
}

// NumBlocks returns the number of whole or partial blocks in the file.
func (d *FileDevice) NumBlocks() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.file == nil {
		return 0, ErrClosed
	}
	stat, err := d.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", d.filePath)
	}
	bs := int64(d.blockSize)
	return int((stat.Size() + bs - 1) / bs), nil
}

// Close syncs, releases the lock and closes the file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil // Already closed
	}

	err := d.file.Sync()
	if unlockErr := unlockFile(d.file); err == nil {
		err = unlockErr
	}
	if closeErr := d.file.Close(); err == nil {
		err = closeErr
	}
	d.file = nil
	if err != nil {
		return errors.Wrapf(err, "close %s", d.filePath)
	}
	return nil
}
