package btree

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// KeyCodec encodes keys into fixed-width slots of a node block.
// Write with present == false must produce the same filler every time so
// unused slots of a node are deterministic.
type KeyCodec[K any] interface {
	Width() int
	Read(buf []byte) K
	Write(buf []byte, key K, present bool)
}

// keyChecker is implemented by codecs that cannot represent every key.
type keyChecker[K any] interface {
	Check(key K) error
}

// Int32Codec stores keys as big-endian int32, filler 0.
type Int32Codec struct{}

func (Int32Codec) Width() int { return 4 }

func (Int32Codec) Read(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf))
}

func (Int32Codec) Write(buf []byte, key int32, present bool) {
	if !present {
		key = 0
	}
	binary.BigEndian.PutUint32(buf, uint32(key))
}

// Int64Codec stores keys as big-endian int64, filler 0.
type Int64Codec struct{}

func (Int64Codec) Width() int { return 8 }

func (Int64Codec) Read(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

func (Int64Codec) Write(buf []byte, key int64, present bool) {
	if !present {
		key = 0
	}
	binary.BigEndian.PutUint64(buf, uint64(key))
}

// FixedStringCodec stores strings of at most N bytes, NUL padded.
// Keys containing NUL bytes cannot round-trip and are rejected.
type FixedStringCodec struct {
	N int
}

var ErrKeyTooLong = errors.New("key does not fit codec width")

func (c FixedStringCodec) Width() int { return c.N }

func (c FixedStringCodec) Read(buf []byte) string {
	return string(bytes.TrimRight(buf[:c.N], "\x00"))
}

func (c FixedStringCodec) Write(buf []byte, key string, present bool) {
	slot := buf[:c.N]
	clear(slot)
	if present {
		copy(slot, key)
	}
}

func (c FixedStringCodec) Check(key string) error {
	if len(key) > c.N {
		return errors.Wrapf(ErrKeyTooLong, "key of %d bytes, width %d", len(key), c.N)
	}
	if bytes.IndexByte([]byte(key), 0) >= 0 {
		return errors.Newf("key %q contains a NUL byte", key)
	}
	return nil
}
