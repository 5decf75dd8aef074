package btree

import (
	"slices"

	"ShadowDB/blockstore"
)

// rotateLeft moves the first entry of right through the separator at sep
// into the end of left.
func rotateLeft[K any](parent, left, right *node[K], sep int) {
	left.keys = append(left.keys, parent.keys[sep])
	parent.keys[sep] = right.keys[0]
	right.keys = slices.Delete(right.keys, 0, 1)
	moved := 1
	if !right.isLeaf {
		left.children = append(left.children, right.children[0])
		left.sizes = append(left.sizes, right.sizes[0])
		moved += right.sizes[0]
		right.children = slices.Delete(right.children, 0, 1)
		right.sizes = slices.Delete(right.sizes, 0, 1)
	}
	parent.sizes[sep] += moved
	parent.sizes[sep+1] -= moved
}

// rotateRight moves the last entry of left through the separator at sep
// into the front of right.
func rotateRight[K any](parent, left, right *node[K], sep int) {
	last := len(left.keys) - 1
	right.keys = slices.Insert(right.keys, 0, parent.keys[sep])
	parent.keys[sep] = left.keys[last]
	left.keys = left.keys[:last]
	moved := 1
	if !left.isLeaf {
		c := len(left.children) - 1
		right.children = slices.Insert(right.children, 0, left.children[c])
		right.sizes = slices.Insert(right.sizes, 0, left.sizes[c])
		moved += left.sizes[c]
		left.children = left.children[:c]
		left.sizes = left.sizes[:c]
	}
	parent.sizes[sep] -= moved
	parent.sizes[sep+1] += moved
}

type mergePolicy int

const (
	keepLeft mergePolicy = iota
	keepRight
	keepParent // parent holds only sep and takes over both children
)

// merge joins left, the separator at sep, and right into one node and
// returns the node that now holds them. The caller frees the others.
func merge[K any](parent, left, right *node[K], sep int, policy mergePolicy) *node[K] {
	keys := make([]K, 0, len(left.keys)+1+len(right.keys))
	keys = append(keys, left.keys...)
	keys = append(keys, parent.keys[sep])
	keys = append(keys, right.keys...)
	var children []blockstore.Addr
	var sizes []int
	if !left.isLeaf {
		children = append(slices.Clone(left.children), right.children...)
		sizes = append(slices.Clone(left.sizes), right.sizes...)
	}

	survivor := parent
	switch policy {
	case keepParent:
		parent.isLeaf = left.isLeaf
	default:
		survivor = left
		if policy == keepRight {
			survivor = right
		}
		merged := parent.sizes[sep] + 1 + parent.sizes[sep+1]
		parent.keys = slices.Delete(parent.keys, sep, sep+1)
		parent.children = slices.Delete(parent.children, sep+1, sep+2)
		parent.sizes = slices.Delete(parent.sizes, sep+1, sep+2)
		parent.children[sep] = survivor.addr
		parent.sizes[sep] = merged
	}
	survivor.keys, survivor.children, survivor.sizes = keys, children, sizes
	return survivor
}

// split moves the upper half of a full node into a new sibling and pushes
// the median into parent, growing a new root when u is the root. It
// returns the half that key belongs to and its position under parent.
func (t *BTree[K]) split(u, parent *node[K], pi int, key K) (*node[K], *node[K], int, error) {
	mid := (len(u.keys) - 1) / 2
	median := u.keys[mid]
	s := &node[K]{isLeaf: u.isLeaf, keys: slices.Clone(u.keys[mid+1:])}
	u.keys = slices.Clone(u.keys[:mid])
	if !u.isLeaf {
		s.children = slices.Clone(u.children[mid+1:])
		s.sizes = slices.Clone(u.sizes[mid+1:])
		u.children = slices.Clone(u.children[:mid+1])
		u.sizes = slices.Clone(u.sizes[:mid+1])
	}
	if err := t.allocNode(s); err != nil {
		return nil, nil, 0, err
	}
	if err := t.writeNode(u); err != nil {
		return nil, nil, 0, err
	}

	if parent == nil {
		parent = &node[K]{
			keys:     []K{median},
			children: []blockstore.Addr{u.addr, s.addr},
			sizes:    []int{u.total(), s.total()},
		}
		if err := t.allocNode(parent); err != nil {
			return nil, nil, 0, err
		}
		t.root = parent.addr
		if err := t.writeMeta(); err != nil {
			return nil, nil, 0, err
		}
		pi = 0
	} else {
		parent.keys = slices.Insert(parent.keys, pi, median)
		parent.children = slices.Insert(parent.children, pi+1, s.addr)
		parent.sizes[pi] = u.total()
		parent.sizes = slices.Insert(parent.sizes, pi+1, s.total())
		if err := t.writeNode(parent); err != nil {
			return nil, nil, 0, err
		}
	}

	if t.cmp(key, median) > 0 {
		return s, parent, pi + 1, nil
	}
	return u, parent, pi, nil
}

// resolveOverflow makes room in the full node u before key descends into
// it. A rotation is only taken when key stays in u.
func (t *BTree[K]) resolveOverflow(u, parent *node[K], pi int, key K) (*node[K], *node[K], int, error) {
	if parent != nil {
		if pi > 0 && t.cmp(key, u.keys[0]) > 0 {
			left, err := t.readNode(parent.children[pi-1])
			if err != nil {
				return nil, nil, 0, err
			}
			if !t.full(left) {
				rotateLeft(parent, left, u, pi-1)
				return u, parent, pi, t.writeAll(left, u, parent)
			}
		}
		if pi < len(parent.keys) && t.cmp(key, u.keys[len(u.keys)-1]) < 0 {
			right, err := t.readNode(parent.children[pi+1])
			if err != nil {
				return nil, nil, 0, err
			}
			if !t.full(right) {
				rotateRight(parent, u, right, pi)
				return u, parent, pi, t.writeAll(u, right, parent)
			}
		}
	}
	return t.split(u, parent, pi, key)
}

// resolveUnderflow brings the low non-root node u above the low water
// mark. It returns the node now covering u's range and its position.
func (t *BTree[K]) resolveUnderflow(u, parent *node[K], pi int) (*node[K], int, error) {
	var left, right *node[K]
	var err error
	if pi > 0 {
		if left, err = t.readNode(parent.children[pi-1]); err != nil {
			return nil, 0, err
		}
		if !t.low(left) {
			rotateRight(parent, left, u, pi-1)
			return u, pi, t.writeAll(left, u, parent)
		}
	}
	if pi < len(parent.keys) {
		if right, err = t.readNode(parent.children[pi+1]); err != nil {
			return nil, 0, err
		}
		if !t.low(right) {
			rotateLeft(parent, u, right, pi)
			return u, pi, t.writeAll(u, right, parent)
		}
	}

	if left != nil {
		u = merge(parent, left, u, pi-1, keepRight)
		if err := t.freeNode(left); err != nil {
			return nil, 0, err
		}
		return u, pi - 1, t.writeAll(u, parent)
	}
	if right == nil {
		return nil, 0, invariantf("node %d has no siblings under %d", u.addr, parent.addr)
	}
	u = merge(parent, u, right, pi, keepLeft)
	if err := t.freeNode(right); err != nil {
		return nil, 0, err
	}
	return u, pi, t.writeAll(u, parent)
}

// collapseRoot folds both children of a single-key root into the root
// when neither can spare a key.
func (t *BTree[K]) collapseRoot(root *node[K]) error {
	left, err := t.readNode(root.children[0])
	if err != nil {
		return err
	}
	right, err := t.readNode(root.children[1])
	if err != nil {
		return err
	}
	if !t.low(left) || !t.low(right) {
		return nil
	}
	merge(root, left, right, 0, keepParent)
	if err := t.freeNode(left); err != nil {
		return err
	}
	if err := t.freeNode(right); err != nil {
		return err
	}
	return t.writeNode(root)
}
