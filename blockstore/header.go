package blockstore

import (
	"encoding/binary"

	blockdev "ShadowDB/blockdevice"

	"github.com/cockroachdb/errors"
)

// header is the content of physical block 0. All integers are big-endian int32.
type header struct {
	MaxBlocks       Addr
	AddressSequence Addr
	DictArrayHead   Addr
	FreeArrayHead   Addr
}

const headerSize = 16

func (h header) isZero() bool {
	return h == header{}
}

func encodeHeader(h header, blockSize int) []byte {
	page := make([]byte, blockSize)
	binary.BigEndian.PutUint32(page[0:], uint32(h.MaxBlocks))
	binary.BigEndian.PutUint32(page[4:], uint32(h.AddressSequence))
	binary.BigEndian.PutUint32(page[8:], uint32(h.DictArrayHead))
	binary.BigEndian.PutUint32(page[12:], uint32(h.FreeArrayHead))
	return page
}

func decodeHeader(page []byte) header {
	return header{
		MaxBlocks:       Addr(binary.BigEndian.Uint32(page[0:])),
		AddressSequence: Addr(binary.BigEndian.Uint32(page[4:])),
		DictArrayHead:   Addr(binary.BigEndian.Uint32(page[8:])),
		FreeArrayHead:   Addr(binary.BigEndian.Uint32(page[12:])),
	}
}

// Array chain block layout:
//   - count (4): number of int32 payload entries used in this block
//   - next (4): physical address of the next block, 0 ends the chain
//   - payload: up to blockSize/4 - 2 int32 entries
const arrayHeaderSize = 8

func arrayCapacity(blockSize int) int {
	return blockSize/4 - 2
}

func encodeArrayBlock(entries []Addr, next Addr, blockSize int) []byte {
	page := make([]byte, blockSize)
	binary.BigEndian.PutUint32(page[0:], uint32(len(entries)))
	binary.BigEndian.PutUint32(page[4:], uint32(next))
	offset := arrayHeaderSize
	for _, e := range entries {
		binary.BigEndian.PutUint32(page[offset:], uint32(e))
		offset += 4
	}
	return page
}

// readChain follows an array chain from head and returns the concatenated
// payload and the physical blocks the chain occupies.
func readChain(dev blockdev.Device, head, maxBlocks Addr, name string) ([]Addr, []Addr, error) {
	blockSize := dev.BlockSize()
	capacity := arrayCapacity(blockSize)
	page := make([]byte, blockSize)
	seen := make(map[Addr]struct{})

	var payload, blocks []Addr
	for p := head; p != 0; {
		if p < 1 || p >= maxBlocks {
			return nil, nil, corruptf("%s array: block %d outside [1, %d)", name, p, maxBlocks)
		}
		if _, dup := seen[p]; dup {
			return nil, nil, corruptf("%s array: chain loops at block %d", name, p)
		}
		seen[p] = struct{}{}

		if err := dev.ReadBlock(int(p), page); err != nil {
			return nil, nil, errors.Wrapf(err, "read %s array block %d", name, p)
		}
		count := int(int32(binary.BigEndian.Uint32(page[0:])))
		next := Addr(binary.BigEndian.Uint32(page[4:]))
		if count < 0 || count > capacity {
			return nil, nil, corruptf("%s array: block %d holds %d entries, capacity %d", name, p, count, capacity)
		}
		offset := arrayHeaderSize
		for i := 0; i < count; i++ {
			payload = append(payload, Addr(binary.BigEndian.Uint32(page[offset:])))
			offset += 4
		}
		blocks = append(blocks, p)
		p = next
	}
	return payload, blocks, nil
}

func corruptf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorrupted)
}
