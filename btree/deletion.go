package btree

import (
	"slices"

	"ShadowDB/blockstore"
)

// Delete removes key and commits. It returns false, leaving the store
// untouched, when key is absent.
//
// Every node is rebalanced before the descent enters it, so the key may
// move between nodes on the way down; it is searched again at each level.
// A key found in an inner node is replaced by its successor, the leftmost
// key of its right subtree.
func (t *BTree[K]) Delete(key K) (deleted bool, err error) {
	if _, found, err := t.Find(key); err != nil || !found {
		return false, err
	}
	defer t.finish(t.root, &deleted, &err)

	u, err := t.readNode(t.root)
	if err != nil {
		return false, err
	}
	var parent *node[K]
	var holder blockstore.Addr // inner node holding key once seen
	pi := 0
	for {
		switch {
		case parent == nil:
			if !u.isLeaf && len(u.keys) == 1 {
				if err := t.collapseRoot(u); err != nil {
					return false, err
				}
			}
		case t.low(u):
			if u, pi, err = t.resolveUnderflow(u, parent, pi); err != nil {
				return false, err
			}
		}
		if parent != nil {
			parent.sizes[pi]--
			if err := t.writeNode(parent); err != nil {
				return false, err
			}
		}

		pos, hit := t.search(u.keys, key)
		if u.isLeaf {
			if hit {
				u.keys = slices.Delete(u.keys, pos, pos+1)
				return true, t.finishLeaf(u, parent)
			}
			if holder == 0 {
				return false, invariantf("key vanished during descent at node %d", u.addr)
			}
			successor := u.keys[0]
			u.keys = slices.Delete(u.keys, 0, 1)
			if err := t.writeNode(u); err != nil {
				return false, err
			}
			return true, t.replaceKey(holder, key, successor)
		}

		switch {
		case hit:
			holder = u.addr
			pos++
		case holder != 0:
			pos = 0
		}
		child, err := t.readNode(u.children[pos])
		if err != nil {
			return false, err
		}
		parent, pi, u = u, pos, child
	}
}

// finishLeaf writes a leaf after a removal, dropping the root when it
// became empty.
func (t *BTree[K]) finishLeaf(leaf, parent *node[K]) error {
	if parent != nil || len(leaf.keys) > 0 {
		return t.writeNode(leaf)
	}
	if err := t.freeNode(leaf); err != nil {
		return err
	}
	t.root = 0
	return t.writeMeta()
}

func (t *BTree[K]) replaceKey(addr blockstore.Addr, key, with K) error {
	n, err := t.readNode(addr)
	if err != nil {
		return err
	}
	pos, found := t.search(n.keys, key)
	if !found {
		return invariantf("node %d no longer holds the deleted key", addr)
	}
	n.keys[pos] = with
	return t.writeNode(n)
}
