package btree

import (
	"ShadowDB/blockstore"
)

// Check walks the whole tree and reports the first structural violation:
// ordering, key bounds, fill limits, child counts, cached sizes, or uneven
// leaf depth.
func (t *BTree[K]) Check() error {
	if t.root == 0 {
		return nil
	}
	c := checker[K]{t: t, leafDepth: -1, seen: map[blockstore.Addr]bool{}}
	_, err := c.node(t.root, 0, nil, nil)
	return err
}

type checker[K any] struct {
	t         *BTree[K]
	leafDepth int
	seen      map[blockstore.Addr]bool
}

// node returns the number of keys under addr. lo and hi are exclusive
// bounds, nil when unbounded.
func (c *checker[K]) node(addr blockstore.Addr, depth int, lo, hi *K) (int, error) {
	t := c.t
	if c.seen[addr] {
		return 0, invariantf("node %d reached twice", addr)
	}
	c.seen[addr] = true
	n, err := t.readNode(addr)
	if err != nil {
		return 0, err
	}
	isRoot := depth == 0
	if len(n.keys) == 0 {
		return 0, invariantf("node %d is empty", addr)
	}
	if len(n.keys) > t.cfg.order(n.isLeaf) {
		return 0, invariantf("node %d holds %d keys, order %d", addr, len(n.keys), t.cfg.order(n.isLeaf))
	}
	if !isRoot && len(n.keys) < t.cfg.lowWaterMark(n.isLeaf) {
		return 0, invariantf("node %d holds %d keys, below low water mark %d", addr, len(n.keys), t.cfg.lowWaterMark(n.isLeaf))
	}
	for i, k := range n.keys {
		if i > 0 && t.cmp(n.keys[i-1], k) >= 0 {
			return 0, invariantf("node %d: keys %d and %d out of order", addr, i-1, i)
		}
		if (lo != nil && t.cmp(k, *lo) <= 0) || (hi != nil && t.cmp(k, *hi) >= 0) {
			return 0, invariantf("node %d: key %d outside parent bounds", addr, i)
		}
	}

	if n.isLeaf {
		if c.leafDepth < 0 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return 0, invariantf("leaf %d at depth %d, other leaves at %d", addr, depth, c.leafDepth)
		}
		return len(n.keys), nil
	}

	if len(n.children) != len(n.keys)+1 || len(n.sizes) != len(n.children) {
		return 0, invariantf("node %d: %d keys with %d children", addr, len(n.keys), len(n.children))
	}
	total := len(n.keys)
	for i, child := range n.children {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = &n.keys[i-1]
		}
		if i < len(n.keys) {
			childHi = &n.keys[i]
		}
		size, err := c.node(child, depth+1, childLo, childHi)
		if err != nil {
			return 0, err
		}
		if size != n.sizes[i] {
			return 0, invariantf("node %d: child %d caches size %d, holds %d", addr, child, n.sizes[i], size)
		}
		total += size
	}
	return total, nil
}
