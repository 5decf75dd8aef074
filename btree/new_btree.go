package btree

import (
	"encoding/binary"

	"ShadowDB/blockstore"

	"github.com/cockroachdb/errors"
)

// New opens the tree kept in store, creating the metadata block on a fresh
// store. The store must not be shared with other writers.
func New[K any](store *blockstore.Store, codec KeyCodec[K], cmp func(a, b K) int, cfg Config) (*BTree[K], error) {
	if codec.Width() < 1 {
		return nil, errors.Wrapf(ErrBadConfig, "key width %d", codec.Width())
	}
	if err := cfg.Validate(store.BlockSize(), codec.Width()); err != nil {
		return nil, err
	}
	t := &BTree[K]{store: store, codec: codec, cmp: cmp, cfg: cfg}

	if !store.Has(MetaAddr) {
		addr, err := store.Allocate(t.encodeMeta())
		if err != nil {
			return nil, errors.Wrap(err, "create tree metadata")
		}
		if addr != MetaAddr {
			return nil, corruptf("metadata allocated at logical %d, store is not empty", addr)
		}
		if err := store.Commit(); err != nil {
			return nil, errors.Wrap(err, "commit tree metadata")
		}
		return t, nil
	}

	root, err := t.readMeta()
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func (t *BTree[K]) encodeMeta() []byte {
	buf := make([]byte, t.store.BlockSize())
	binary.BigEndian.PutUint32(buf[0:4], uint32(t.root))
	return buf
}

func (t *BTree[K]) readMeta() (blockstore.Addr, error) {
	buf, err := t.store.Read(MetaAddr)
	if err != nil {
		return 0, errors.Wrap(err, "read tree metadata")
	}
	root := blockstore.Addr(int32(binary.BigEndian.Uint32(buf[0:4])))
	if root < 0 || root == MetaAddr || (root != 0 && !t.store.Has(root)) {
		return 0, corruptf("metadata names root %d", root)
	}
	return root, nil
}

func (t *BTree[K]) writeMeta() error {
	return t.store.Write(MetaAddr, t.encodeMeta())
}

// finish commits a mutation, or rolls the store back to the last
// committed image when the mutation or the commit failed.
func (t *BTree[K]) finish(root blockstore.Addr, changed *bool, errp *error) {
	if *errp == nil {
		if *errp = t.store.Commit(); *errp == nil {
			return
		}
	}
	*changed = false
	t.root = root
	if err := t.store.Rollback(); err != nil {
		*errp = errors.CombineErrors(*errp, err)
	}
}

func (t *BTree[K]) checkKey(key K) error {
	if c, ok := t.codec.(keyChecker[K]); ok {
		return c.Check(key)
	}
	return nil
}
