package btree

import (
	"ShadowDB/blockstore"

	"github.com/cockroachdb/errors"
)

// Find returns the stored key equal to key.
func (t *BTree[K]) Find(key K) (K, bool, error) {
	var zero K
	addr := t.root
	for addr != 0 {
		n, err := t.readNode(addr)
		if err != nil {
			return zero, false, err
		}
		pos, found := t.search(n.keys, key)
		if found {
			return n.keys[pos], true, nil
		}
		if n.isLeaf {
			break
		}
		addr = n.children[pos]
	}
	return zero, false, nil
}

// Size is the number of keys in the tree, read from the cached subtree
// sizes of the root.
func (t *BTree[K]) Size() (int, error) {
	if t.root == 0 {
		return 0, nil
	}
	root, err := t.readNode(t.root)
	if err != nil {
		return 0, err
	}
	return root.total(), nil
}

// Nth returns the i-th smallest key, counting from 0.
func (t *BTree[K]) Nth(i int) (K, error) {
	var zero K
	size, err := t.Size()
	if err != nil {
		return zero, err
	}
	if i < 0 || i >= size {
		return zero, errors.Wrapf(ErrOutOfRange, "index %d, size %d", i, size)
	}
	addr := t.root
	for {
		n, err := t.readNode(addr)
		if err != nil {
			return zero, err
		}
		if n.isLeaf {
			if i >= len(n.keys) {
				return zero, corruptf("node %d: rank %d past %d keys", n.addr, i, len(n.keys))
			}
			return n.keys[i], nil
		}
		next := -1
		for j, s := range n.sizes {
			if i < s {
				next = j
				break
			}
			i -= s
			if j == len(n.keys) {
				break
			}
			if i == 0 {
				return n.keys[j], nil
			}
			i--
		}
		if next < 0 {
			return zero, corruptf("node %d: subtree sizes smaller than rank", n.addr)
		}
		addr = n.children[next]
	}
}

// Rank is the number of keys strictly smaller than key.
func (t *BTree[K]) Rank(key K) (int, error) {
	rank := 0
	addr := t.root
	for addr != 0 {
		n, err := t.readNode(addr)
		if err != nil {
			return 0, err
		}
		pos, found := t.search(n.keys, key)
		rank += pos
		if n.isLeaf {
			break
		}
		for _, s := range n.sizes[:pos] {
			rank += s
		}
		if found {
			rank += n.sizes[pos]
			break
		}
		addr = n.children[pos]
	}
	return rank, nil
}

// Ascend calls fn for every key in increasing order until fn returns false.
func (t *BTree[K]) Ascend(fn func(key K) bool) error {
	if t.root == 0 {
		return nil
	}
	_, err := t.ascend(t.root, fn)
	return err
}

func (t *BTree[K]) ascend(addr blockstore.Addr, fn func(key K) bool) (bool, error) {
	n, err := t.readNode(addr)
	if err != nil {
		return false, err
	}
	for i, key := range n.keys {
		if !n.isLeaf {
			if more, err := t.ascend(n.children[i], fn); err != nil || !more {
				return more, err
			}
		}
		if !fn(key) {
			return false, nil
		}
	}
	if n.isLeaf {
		return true, nil
	}
	return t.ascend(n.children[len(n.keys)], fn)
}
