package btree

import (
	"fmt"
	"io"
	"strings"

	"ShadowDB/blockstore"

	"github.com/cockroachdb/errors"
)

// Dump prints the tree level by level, one line per level, each node as
// its bracketed key list.
func (t *BTree[K]) Dump(w io.Writer) error {
	if t.root == 0 {
		_, err := fmt.Fprintln(w, "(empty)")
		return err
	}
	level := []blockstore.Addr{t.root}
	for len(level) > 0 {
		var next []blockstore.Addr
		parts := make([]string, 0, len(level))
		for _, addr := range level {
			n, err := t.readNode(addr)
			if err != nil {
				return err
			}
			keys := make([]string, len(n.keys))
			for i, k := range n.keys {
				keys[i] = fmt.Sprint(k)
			}
			parts = append(parts, "["+strings.Join(keys, " ")+"]")
			next = append(next, n.children...)
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return err
		}
		level = next
	}
	return nil
}

// Inspect writes a per-level listing of every node with its logical
// address, cached subtree sizes and children. It stops at the first node
// that cannot be read or the first failed write to w.
func (t *BTree[K]) Inspect(w io.Writer) error {
	var werr error
	p := func(format string, args ...interface{}) {
		if werr == nil {
			_, werr = fmt.Fprintf(w, format, args...)
		}
	}

	p("  Metadata (logical %d): root = %d\n", MetaAddr, t.root)
	if t.root == 0 {
		p("  (empty tree)\n")
		return werr
	}

	queue := []blockstore.Addr{t.root}
	for level := 0; len(queue) > 0 && werr == nil; level++ {
		p("  Level %d:\n", level)
		var next []blockstore.Addr
		for _, addr := range queue {
			n, err := t.readNode(addr)
			if err != nil {
				return errors.Wrapf(err, "inspect level %d", level)
			}
			if n.isLeaf {
				p("    [logical %d] LEAF keys=%v\n", addr, n.keys)
				continue
			}
			p("    [logical %d] INNER keys=%v sizes=%v children=%v\n", addr, n.keys, n.sizes, n.children)
			next = append(next, n.children...)
		}
		queue = next
	}
	return werr
}

// Root is the logical address of the root node, 0 for an empty tree.
func (t *BTree[K]) Root() blockstore.Addr {
	return t.root
}
