package cli

import (
	"cmp"
	"fmt"
	"os"

	blockdev "ShadowDB/blockdevice"
	"ShadowDB/blockstore"
	"ShadowDB/btree"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

type options struct {
	file        string
	blockSize   int
	cacheBlocks int64
	tree        btree.Config
}

var opts = options{tree: btree.Config234}

// Root command for the CLI
var RootCmd = &cobra.Command{
	Use:           "shadowdb",
	Short:         "Shadow paged B-Tree of int32 keys",
	Long:          "A command line interface over a copy-on-write block store holding an order statistics B-Tree of int32 keys.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	f := RootCmd.PersistentFlags()
	f.StringVar(&opts.file, "file", "shadow.db", "store file")
	f.IntVar(&opts.blockSize, "block-size", blockdev.DefaultBlockSize, "block size in bytes, fixed when the file is created")
	f.IntVar(&opts.tree.InnerOrder, "inner-order", opts.tree.InnerOrder, "max keys per inner node")
	f.IntVar(&opts.tree.InnerLowWaterMark, "inner-lwm", opts.tree.InnerLowWaterMark, "low water mark of inner nodes")
	f.IntVar(&opts.tree.LeafOrder, "leaf-order", opts.tree.LeafOrder, "max keys per leaf node")
	f.IntVar(&opts.tree.LeafLowWaterMark, "leaf-lwm", opts.tree.LeafLowWaterMark, "low water mark of leaf nodes")
	f.Int64Var(&opts.cacheBlocks, "cache-blocks", 0, "read cache size in blocks, 0 disables the cache")

	RootCmd.AddCommand(addCmd)
	RootCmd.AddCommand(deleteCmd)
	RootCmd.AddCommand(findCmd)
	RootCmd.AddCommand(sizeCmd)
	RootCmd.AddCommand(printCmd)
	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(nthCmd)
	RootCmd.AddCommand(shellCmd)
}

type session struct {
	dev   blockdev.Device
	store *blockstore.Store
	tree  *btree.BTree[int32]
}

type closer interface {
	Close() error
}

func openSession(o options) (*session, error) {
	fileDev, err := blockdev.OpenFileDevice(o.file, o.blockSize)
	if err != nil {
		return nil, err
	}
	var dev blockdev.Device = fileDev
	if o.cacheBlocks > 0 {
		cached, err := blockdev.NewCachedDevice(fileDev, blockdev.CacheOptions{MaxBlocks: o.cacheBlocks})
		if err != nil {
			fileDev.Close()
			return nil, err
		}
		dev = cached
	}
	s := &session{dev: dev}

	if s.store, err = blockstore.Open(dev); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "open %s", o.file)
	}
	if s.tree, err = btree.New[int32](s.store, btree.Int32Codec{}, cmp.Compare[int32], o.tree); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "open tree in %s", o.file)
	}
	return s, nil
}

func (s *session) Close() error {
	if c, ok := s.dev.(closer); ok {
		return c.Close()
	}
	return nil
}

// withTree opens the store named by the flags for the duration of fn.
func withTree(fn func(s *session) error) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
