// Structure of a raw block device
/*
Device
 ├── block 0
 ├── block 1
 ├── ...
 └── block n   (fixed BlockSize bytes each, addressed by physical index)

- a block that was never written reads back as zeroes
- no partial-block reads or writes
- Flush forces every prior write to durable media
*/
package blockdev

import "github.com/cockroachdb/errors"

const DefaultBlockSize = 4096 // in bytes (4KB)

var (
	ErrBlockSize = errors.New("buffer does not match device block size")
	ErrBadIndex  = errors.New("negative block index")
	ErrClosed    = errors.New("device is closed")
	ErrLocked    = errors.New("device file is locked by another writer")
)

// Device is the persistence abstraction underneath the block store.
// Implementations only know physical block indexes.
type Device interface {
	BlockSize() int
	ReadBlock(idx int, buf []byte) error
	WriteBlock(idx int, buf []byte) error
	Flush() error
}

func checkRead(blockSize, idx int, buf []byte) error {
	if idx < 0 {
		return errors.Wrapf(ErrBadIndex, "read block %d", idx)
	}
	if len(buf) != blockSize {
		return errors.Wrapf(ErrBlockSize, "read block %d: buffer of %d bytes, block size %d", idx, len(buf), blockSize)
	}
	return nil
}

// checkWrite allows buffers shorter than a block; callers pad them with zeroes.
func checkWrite(blockSize, idx int, buf []byte) error {
	if idx < 0 {
		return errors.Wrapf(ErrBadIndex, "write block %d", idx)
	}
	if len(buf) > blockSize {
		return errors.Wrapf(ErrBlockSize, "write block %d: buffer of %d bytes, block size %d", idx, len(buf), blockSize)
	}
	return nil
}
