package btree

import "slices"

// Add inserts key and commits. It returns false, leaving the store
// untouched, when an equal key is already present.
func (t *BTree[K]) Add(key K) (added bool, err error) {
	if err := t.checkKey(key); err != nil {
		return false, err
	}
	if _, found, err := t.Find(key); err != nil || found {
		return false, err
	}
	defer t.finish(t.root, &added, &err)

	if t.root == 0 {
		root := &node[K]{isLeaf: true, keys: []K{key}}
		if err := t.allocNode(root); err != nil {
			return false, err
		}
		t.root = root.addr
		return true, t.writeMeta()
	}

	u, err := t.readNode(t.root)
	if err != nil {
		return false, err
	}
	var parent *node[K]
	pi := 0
	for {
		if t.full(u) {
			if u, parent, pi, err = t.resolveOverflow(u, parent, pi, key); err != nil {
				return false, err
			}
		}
		if parent != nil {
			parent.sizes[pi]++
			if err := t.writeNode(parent); err != nil {
				return false, err
			}
		}

		pos, _ := t.search(u.keys, key)
		if u.isLeaf {
			u.keys = slices.Insert(u.keys, pos, key)
			return true, t.writeNode(u)
		}
		child, err := t.readNode(u.children[pos])
		if err != nil {
			return false, err
		}
		parent, pi, u = u, pos, child
	}
}
