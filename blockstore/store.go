package blockstore

import (
	"math"

	blockdev "ShadowDB/blockdevice"

	"github.com/cockroachdb/errors"
)

// Open loads the store kept on dev. A device whose header block is all
// zero is treated as a fresh, empty store. Any structural inconsistency in
// the header or its arrays fails with an error marked ErrCorrupted.
func Open(dev blockdev.Device) (*Store, error) {
	blockSize := dev.BlockSize()
	if blockSize < MinBlockSize || blockSize%4 != 0 {
		return nil, errors.Newf("block size %d: must be a multiple of 4 and at least %d", blockSize, MinBlockSize)
	}

	page := make([]byte, blockSize)
	if err := dev.ReadBlock(int(HeaderBlock), page); err != nil {
		return nil, errors.Wrap(err, "read store header")
	}

	st := newState()
	if h := decodeHeader(page); !h.isZero() {
		var err error
		if st, err = loadState(dev, h); err != nil {
			return nil, err
		}
	}

	return &Store{
		dev:       dev,
		blockSize: blockSize,
		committed: st,
		current:   st.clone(),
		safe:      st.free.Clone(),
	}, nil
}

func loadState(dev blockdev.Device, h header) (*state, error) {
	if h.MaxBlocks < 1 {
		return nil, corruptf("header: max blocks %d", h.MaxBlocks)
	}
	if h.AddressSequence < 0 {
		return nil, corruptf("header: address sequence %d", h.AddressSequence)
	}

	dict, dictBlocks, err := readChain(dev, h.DictArrayHead, h.MaxBlocks, "dict")
	if err != nil {
		return nil, err
	}
	free, freeBlocks, err := readChain(dev, h.FreeArrayHead, h.MaxBlocks, "free")
	if err != nil {
		return nil, err
	}
	if len(dict)%2 != 0 {
		return nil, corruptf("dict array: odd entry count %d", len(dict))
	}

	st := newState()
	st.maxBlocks = h.MaxBlocks
	st.sequence = h.AddressSequence

	owner := make(map[Addr]Addr) // physical -> logical, 0 for free
	for i := 0; i < len(dict); i += 2 {
		l, p := dict[i], dict[i+1]
		if l < 1 || l > h.AddressSequence {
			return nil, corruptf("dict array: logical %d outside [1, %d]", l, h.AddressSequence)
		}
		if p < 1 || p >= h.MaxBlocks {
			return nil, corruptf("dict array: logical %d maps to physical %d outside [1, %d)", l, p, h.MaxBlocks)
		}
		if _, dup := owner[p]; dup {
			return nil, corruptf("dict array: physical %d mapped twice", p)
		}
		if _, dup := st.mapping.ReplaceOrInsert(mapping{Logical: l, Physical: p}); dup {
			return nil, corruptf("dict array: logical %d mapped twice", l)
		}
		owner[p] = l
	}
	for _, p := range free {
		if p < 1 || p >= h.MaxBlocks {
			return nil, corruptf("free array: physical %d outside [1, %d)", p, h.MaxBlocks)
		}
		if _, dup := owner[p]; dup {
			return nil, corruptf("free array: physical %d is also in use", p)
		}
		owner[p] = 0
		st.free.ReplaceOrInsert(p)
	}

	if got := st.mapping.Len() + st.free.Len() + 1; got != int(h.MaxBlocks) {
		return nil, corruptf("header: max blocks %d but %d mapped + %d free + 1", h.MaxBlocks, st.mapping.Len(), st.free.Len())
	}

	for _, p := range append(dictBlocks, freeBlocks...) {
		l := owner[p]
		if l == 0 {
			return nil, corruptf("array chain block %d is not mapped", p)
		}
		st.arrays = append(st.arrays, l)
	}
	return st, nil
}

func (s *Store) BlockSize() int {
	return s.blockSize
}

func (s *Store) Has(logical Addr) bool {
	_, ok := s.current.physical(logical)
	return ok
}

// Dirty reports whether anything changed since the last commit or rollback.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Read returns a copy of the block at logical.
func (s *Store) Read(logical Addr) ([]byte, error) {
	p, ok := s.current.physical(logical)
	if !ok {
		return nil, errors.Wrapf(ErrAddressNotFound, "read logical %d", logical)
	}
	buf := make([]byte, s.blockSize)
	if err := s.dev.ReadBlock(int(p), buf); err != nil {
		return nil, errors.Wrapf(err, "read logical %d (physical %d)", logical, p)
	}
	return buf, nil
}

// Write replaces the content of logical. The first write to a block since
// the last commit relocates it, leaving the committed copy untouched.
func (s *Store) Write(logical Addr, data []byte) error {
	if len(data) > s.blockSize {
		return errors.Wrapf(ErrBlockSize, "write logical %d: %d bytes", logical, len(data))
	}
	p, ok := s.current.physical(logical)
	if !ok {
		return errors.Wrapf(ErrAddressNotFound, "write logical %d", logical)
	}

	if cp, ok := s.committed.physical(logical); ok && cp == p {
		np, err := s.allocPhysical()
		if err != nil {
			return err
		}
		s.current.mapping.ReplaceOrInsert(mapping{Logical: logical, Physical: np})
		s.release(p)
		p = np
	}
	s.dirty = true

	if err := s.dev.WriteBlock(int(p), data); err != nil {
		return errors.Wrapf(err, "write logical %d (physical %d)", logical, p)
	}
	return nil
}

// Allocate binds data to a new logical address.
func (s *Store) Allocate(data []byte) (Addr, error) {
	if len(data) > s.blockSize {
		return 0, errors.Wrapf(ErrBlockSize, "allocate: %d bytes", len(data))
	}
	l, p, err := s.allocBlock()
	if err != nil {
		return 0, err
	}
	if err := s.dev.WriteBlock(int(p), data); err != nil {
		return 0, errors.Wrapf(err, "write logical %d (physical %d)", l, p)
	}
	return l, nil
}

// Free unmaps logical and returns its physical block to the free list.
func (s *Store) Free(logical Addr) error {
	p, ok := s.current.physical(logical)
	if !ok {
		return errors.Wrapf(ErrAddressNotFound, "free logical %d", logical)
	}
	s.current.mapping.Delete(mapping{Logical: logical})
	s.release(p)
	s.dirty = true
	return nil
}

func (s *Store) allocBlock() (Addr, Addr, error) {
	if s.current.sequence == math.MaxInt32 {
		return 0, 0, errors.Wrap(ErrFull, "logical addresses")
	}
	p, err := s.allocPhysical()
	if err != nil {
		return 0, 0, err
	}
	s.current.sequence++
	l := s.current.sequence
	s.current.mapping.ReplaceOrInsert(mapping{Logical: l, Physical: p})
	s.dirty = true
	return l, p, nil
}

// allocPhysical prefers the lowest safe free block, else grows the store.
func (s *Store) allocPhysical() (Addr, error) {
	if p, ok := s.safe.DeleteMin(); ok {
		s.current.free.Delete(p)
		return p, nil
	}
	if s.current.maxBlocks == math.MaxInt32 {
		return 0, errors.Wrap(ErrFull, "physical blocks")
	}
	p := s.current.maxBlocks
	s.current.maxBlocks++
	return p, nil
}

// release puts p back on the free list. It only becomes reusable in this
// generation if the committed image does not reference it.
func (s *Store) release(p Addr) {
	s.current.free.ReplaceOrInsert(p)
	if s.unreferenced(p) {
		s.safe.ReplaceOrInsert(p)
	}
}

// unreferenced reports whether the committed image cannot point at p:
// it was free at the last commit or the store grew past it since.
func (s *Store) unreferenced(p Addr) bool {
	return p >= s.committed.maxBlocks || s.committed.free.Has(p)
}
