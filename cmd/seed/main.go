// Seed program: creates a store file holding the keys start, start+step, ...
// and then deletes every third one so the tree exercises merges.
// Run: go run ./cmd/seed -file shadow.db -n 200
// Then inspect: go run ./cmd/inspect_store shadow.db
package main

import (
	"cmp"
	"flag"
	"fmt"
	"log"

	blockdev "ShadowDB/blockdevice"
	"ShadowDB/blockstore"
	"ShadowDB/btree"
)

func main() {
	file := flag.String("file", "shadow.db", "store file")
	n := flag.Int("n", 100, "number of keys")
	start := flag.Int("start", 1, "first key")
	step := flag.Int("step", 1, "distance between keys")
	cfg := btree.Config234
	flag.IntVar(&cfg.InnerOrder, "inner-order", cfg.InnerOrder, "max keys per inner node")
	flag.IntVar(&cfg.InnerLowWaterMark, "inner-lwm", cfg.InnerLowWaterMark, "low water mark of inner nodes")
	flag.IntVar(&cfg.LeafOrder, "leaf-order", cfg.LeafOrder, "max keys per leaf node")
	flag.IntVar(&cfg.LeafLowWaterMark, "leaf-lwm", cfg.LeafLowWaterMark, "low water mark of leaf nodes")
	flag.Parse()

	dev, err := blockdev.OpenFileDevice(*file, blockdev.DefaultBlockSize)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer dev.Close()

	store, err := blockstore.Open(dev)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	tree, err := btree.New[int32](store, btree.Int32Codec{}, cmp.Compare[int32], cfg)
	if err != nil {
		log.Fatalf("open tree: %v", err)
	}

	added, deleted := 0, 0
	for i := 0; i < *n; i++ {
		ok, err := tree.Add(int32(*start + i**step))
		if err != nil {
			log.Fatalf("add: %v", err)
		}
		if ok {
			added++
		}
	}
	for i := 0; i < *n; i += 3 {
		ok, err := tree.Delete(int32(*start + i**step))
		if err != nil {
			log.Fatalf("delete: %v", err)
		}
		if ok {
			deleted++
		}
	}
	if err := tree.Check(); err != nil {
		log.Fatalf("check: %v", err)
	}
	size, err := tree.Size()
	if err != nil {
		log.Fatalf("size: %v", err)
	}

	fmt.Printf("Added %d keys, deleted %d, tree holds %d.\n", added, deleted, size)
	fmt.Println("Inspect with: go run ./cmd/inspect_store", *file)
}
