// Inspect a store file: header counters, free blocks and the tree it holds.
// Usage: go run ./cmd/inspect_store [-block-size 4096] <path-to-store>
// Example: go run ./cmd/inspect_store shadow.db
package main

import (
	"cmp"
	"flag"
	"fmt"
	"io"
	"os"

	blockdev "ShadowDB/blockdevice"
	"ShadowDB/blockstore"
	"ShadowDB/btree"
)

func main() {
	blockSize := flag.Int("block-size", blockdev.DefaultBlockSize, "block size of the store file")
	cfg := btree.Config234
	flag.IntVar(&cfg.InnerOrder, "inner-order", cfg.InnerOrder, "max keys per inner node")
	flag.IntVar(&cfg.InnerLowWaterMark, "inner-lwm", cfg.InnerLowWaterMark, "low water mark of inner nodes")
	flag.IntVar(&cfg.LeafOrder, "leaf-order", cfg.LeafOrder, "max keys per leaf node")
	flag.IntVar(&cfg.LeafLowWaterMark, "leaf-lwm", cfg.LeafLowWaterMark, "low water mark of leaf nodes")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-block-size n] <store>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s shadow.db\n", os.Args[0])
		os.Exit(1)
	}
	if err := inspect(os.Stdout, flag.Arg(0), *blockSize, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(w io.Writer, path string, blockSize int, cfg btree.Config) error {
	dev, err := blockdev.OpenFileDevice(path, blockSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	store, err := blockstore.Open(dev)
	if err != nil {
		return err
	}
	st := store.Stats()
	fmt.Fprintf(w, "Store file: %s (block size %d)\n", dev.Path(), dev.BlockSize())
	fmt.Fprintf(w, "  Block 0 (header): max_blocks=%d address_sequence=%d\n", st.MaxBlocks, st.AddressSequence)
	fmt.Fprintf(w, "  Mapped blocks: %d\n", st.Mapped)
	fmt.Fprintf(w, "  Free blocks:   %d %v\n", st.Free, store.FreeBlocks())
	if err := store.Validate(); err != nil {
		fmt.Fprintf(w, "  Store invariants: %v\n", err)
	}

	tree, err := btree.New[int32](store, btree.Int32Codec{}, cmp.Compare[int32], cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "\n  Nodes (BFS):")
	fmt.Fprintln(w, "  ---")
	if err := tree.Inspect(w); err != nil {
		return err
	}
	if err := tree.Check(); err != nil {
		fmt.Fprintf(w, "  Tree invariants: %v\n", err)
	}
	return nil
}
