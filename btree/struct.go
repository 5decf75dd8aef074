// Structure of the B-Tree
/*
metadata block (logical 1): root logical address, 0 = empty tree

Tree
 ├── Inner Node (keys + child addresses + cached subtree sizes)
 │      └── Child Inner Nodes ...
 │             └── Leaf Nodes (keys only)

- keys: strictly increasing under the tree comparator
- inner nodes: children length == len(keys)+1, sizes[i] = keys under children[i]
- all leaves at the same depth
- every node except the root holds between low water mark and order keys
- nodes are values decoded from a logical block on every access and
  written back explicitly; nothing is cached across calls
*/
package btree

import (
	"ShadowDB/blockstore"

	"github.com/cockroachdb/errors"
)

const (
	MetaAddr     blockstore.Addr = 1
	nodeChecksum                 = 154
)

var (
	ErrCorrupted  = blockstore.ErrCorrupted
	ErrInvariant  = errors.New("b-tree invariant violated")
	ErrOutOfRange = errors.New("index out of range")
	ErrBadConfig  = errors.New("invalid b-tree configuration")
)

type node[K any] struct {
	addr     blockstore.Addr
	isLeaf   bool
	keys     []K
	children []blockstore.Addr // only for inner nodes
	sizes    []int             // only for inner nodes
}

// BTree is a single-writer B-Tree persisted in a block store. Every Add
// and Delete is committed to the store before it returns.
type BTree[K any] struct {
	store *blockstore.Store
	codec KeyCodec[K]
	cmp   func(a, b K) int
	cfg   Config
	root  blockstore.Addr // 0 when the tree is empty
}
