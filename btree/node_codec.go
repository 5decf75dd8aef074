package btree

import (
	"encoding/binary"

	"ShadowDB/blockstore"

	"github.com/cockroachdb/errors"
)

/*
Node block layout (big-endian):

	checksum   int32 (154)
	isLeaf     byte  (1 leaf, 0 inner)
	keyCount   int32
	keys       order slots of codec width, unused slots hold the codec filler
	children   inner only: order+1 pairs of (child int32, size int32)

The rest of the block is zero.
*/

const (
	nodeHeaderSize = 4 + 1 + 4
	childEntrySize = 8
)

func encodedNodeSize(isLeaf bool, order, keyWidth int) int {
	n := nodeHeaderSize + order*keyWidth
	if !isLeaf {
		n += (order + 1) * childEntrySize
	}
	return n
}

func (t *BTree[K]) encodeNode(n *node[K]) []byte {
	buf := make([]byte, t.store.BlockSize())
	binary.BigEndian.PutUint32(buf[0:4], nodeChecksum)
	if n.isLeaf {
		buf[4] = 1
	}
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(n.keys)))

	order := t.cfg.order(n.isLeaf)
	width := t.codec.Width()
	off := nodeHeaderSize
	var zero K
	for i := range order {
		if i < len(n.keys) {
			t.codec.Write(buf[off:off+width], n.keys[i], true)
		} else {
			t.codec.Write(buf[off:off+width], zero, false)
		}
		off += width
	}
	if n.isLeaf {
		return buf
	}
	for i := range n.children {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(n.children[i]))
		binary.BigEndian.PutUint32(buf[off+4:off+8], uint32(n.sizes[i]))
		off += childEntrySize
	}
	return buf
}

func (t *BTree[K]) decodeNode(addr blockstore.Addr, buf []byte) (*node[K], error) {
	if len(buf) < nodeHeaderSize {
		return nil, corruptf("node %d: block of %d bytes", addr, len(buf))
	}
	if sum := binary.BigEndian.Uint32(buf[0:4]); sum != nodeChecksum {
		return nil, corruptf("node %d: checksum %d", addr, int32(sum))
	}
	var isLeaf bool
	switch buf[4] {
	case 0:
	case 1:
		isLeaf = true
	default:
		return nil, corruptf("node %d: leaf flag %d", addr, buf[4])
	}
	order := t.cfg.order(isLeaf)
	count := int(int32(binary.BigEndian.Uint32(buf[5:9])))
	if count < 0 || count > order {
		return nil, corruptf("node %d: key count %d, order %d", addr, count, order)
	}
	if need := encodedNodeSize(isLeaf, order, t.codec.Width()); len(buf) < need {
		return nil, corruptf("node %d: block of %d bytes, need %d", addr, len(buf), need)
	}

	n := &node[K]{addr: addr, isLeaf: isLeaf, keys: make([]K, count)}
	width := t.codec.Width()
	off := nodeHeaderSize
	for i := range count {
		n.keys[i] = t.codec.Read(buf[off : off+width])
		off += width
	}
	if isLeaf {
		return n, nil
	}
	off = nodeHeaderSize + order*width
	n.children = make([]blockstore.Addr, count+1)
	n.sizes = make([]int, count+1)
	for i := range count + 1 {
		child := blockstore.Addr(int32(binary.BigEndian.Uint32(buf[off : off+4])))
		size := int(int32(binary.BigEndian.Uint32(buf[off+4 : off+8])))
		if child < 1 || size < 0 {
			return nil, corruptf("node %d: child %d has address %d size %d", addr, i, child, size)
		}
		n.children[i], n.sizes[i] = child, size
		off += childEntrySize
	}
	return n, nil
}

func corruptf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorrupted)
}

func invariantf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvariant)
}
