package btree

import (
	"slices"

	"ShadowDB/blockstore"
)

func (t *BTree[K]) full(n *node[K]) bool {
	return len(n.keys) >= t.cfg.order(n.isLeaf)
}

func (t *BTree[K]) low(n *node[K]) bool {
	return len(n.keys) <= t.cfg.lowWaterMark(n.isLeaf)
}

// total is the number of keys stored in the subtree rooted at n.
func (n *node[K]) total() int {
	total := len(n.keys)
	for _, s := range n.sizes {
		total += s
	}
	return total
}

func (t *BTree[K]) search(keys []K, key K) (int, bool) {
	return slices.BinarySearchFunc(keys, key, t.cmp)
}

func (t *BTree[K]) readNode(addr blockstore.Addr) (*node[K], error) {
	buf, err := t.store.Read(addr)
	if err != nil {
		return nil, err
	}
	return t.decodeNode(addr, buf)
}

func (t *BTree[K]) writeNode(n *node[K]) error {
	return t.store.Write(n.addr, t.encodeNode(n))
}

// allocNode stores a new node and records its address.
func (t *BTree[K]) allocNode(n *node[K]) error {
	addr, err := t.store.Allocate(t.encodeNode(n))
	if err != nil {
		return err
	}
	n.addr = addr
	return nil
}

func (t *BTree[K]) freeNode(n *node[K]) error {
	return t.store.Free(n.addr)
}

// writeAll writes back every node touched by a rebalancing step.
func (t *BTree[K]) writeAll(nodes ...*node[K]) error {
	for _, n := range nodes {
		if err := t.writeNode(n); err != nil {
			return err
		}
	}
	return nil
}
