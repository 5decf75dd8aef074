package blockstore

import (
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// Commit makes every change since the last commit durable. The dict and
// free arrays are written to freshly allocated blocks, flushed, and only
// then is the header in block 0 switched over to them. A crash at any
// point before the header write leaves the previous commit intact.
func (s *Store) Commit() error {
	if !s.dirty {
		return nil
	}

	// The previous generation's arrays are no longer needed once this one
	// is written; they stay out of the safe set until the header moves.
	for _, l := range s.current.arrays {
		if err := s.Free(l); err != nil {
			return errors.Wrap(err, "commit: release old array block")
		}
	}
	s.current.arrays = nil

	dictBlocks, freeBlocks, err := s.reserveArrays()
	if err != nil {
		return errors.Wrap(err, "commit")
	}

	var dict []Addr
	s.current.mapping.Ascend(func(m mapping) bool {
		dict = append(dict, m.Logical, m.Physical)
		return true
	})
	free := freeSet(s.current.free)

	dictHead, err := s.writeChain(dictBlocks, dict, 2*s.pairsPerBlock())
	if err != nil {
		return errors.Wrap(err, "commit: write dict array")
	}
	freeHead, err := s.writeChain(freeBlocks, free, arrayCapacity(s.blockSize))
	if err != nil {
		return errors.Wrap(err, "commit: write free array")
	}
	if err := s.dev.Flush(); err != nil {
		return errors.Wrap(err, "commit: flush arrays")
	}

	h := header{
		MaxBlocks:       s.current.maxBlocks,
		AddressSequence: s.current.sequence,
		DictArrayHead:   dictHead,
		FreeArrayHead:   freeHead,
	}
	if err := s.dev.WriteBlock(int(HeaderBlock), encodeHeader(h, s.blockSize)); err != nil {
		return errors.Wrap(err, "commit: write header")
	}
	if err := s.dev.Flush(); err != nil {
		return errors.Wrap(err, "commit: flush header")
	}

	for _, b := range dictBlocks {
		s.current.arrays = append(s.current.arrays, b.Logical)
	}
	for _, b := range freeBlocks {
		s.current.arrays = append(s.current.arrays, b.Logical)
	}
	s.committed = s.current.clone()
	s.safe = s.current.free.Clone()
	s.dirty = false
	return nil
}

// Rollback throws away every change since the last commit.
func (s *Store) Rollback() error {
	s.current = s.committed.clone()
	s.safe = s.committed.free.Clone()
	s.dirty = false
	if err := s.dev.Flush(); err != nil {
		return errors.Wrap(err, "rollback: flush")
	}
	return nil
}

func (s *Store) pairsPerBlock() int {
	return arrayCapacity(s.blockSize) / 2
}

// reserveArrays allocates enough blocks to hold both arrays. Allocating a
// block adds a mapping and may consume a free entry, so the sizes are
// recomputed until they fit.
func (s *Store) reserveArrays() (dictBlocks, freeBlocks []mapping, err error) {
	pairs := s.pairsPerBlock()
	capacity := arrayCapacity(s.blockSize)
	for {
		needDict := ceilDiv(s.current.mapping.Len(), pairs)
		needFree := ceilDiv(s.current.free.Len(), capacity)
		if len(dictBlocks) >= needDict && len(freeBlocks) >= needFree {
			return dictBlocks, freeBlocks, nil
		}
		l, p, err := s.allocBlock()
		if err != nil {
			return nil, nil, err
		}
		if len(dictBlocks) < needDict {
			dictBlocks = append(dictBlocks, mapping{Logical: l, Physical: p})
		} else {
			freeBlocks = append(freeBlocks, mapping{Logical: l, Physical: p})
		}
	}
}

// writeChain spreads entries over blocks, perBlock at a time, and links
// the blocks in order. It returns the physical head, 0 for no blocks.
func (s *Store) writeChain(blocks []mapping, entries []Addr, perBlock int) (Addr, error) {
	for i, b := range blocks {
		lo := min(i*perBlock, len(entries))
		hi := min(lo+perBlock, len(entries))
		var next Addr
		if i+1 < len(blocks) {
			next = blocks[i+1].Physical
		}
		page := encodeArrayBlock(entries[lo:hi], next, s.blockSize)
		if err := s.dev.WriteBlock(int(b.Physical), page); err != nil {
			return 0, errors.Wrapf(err, "write array block %d", b.Physical)
		}
	}
	if len(blocks) == 0 {
		return 0, nil
	}
	return blocks[0].Physical, nil
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// freeSet copies an ordered set into a plain slice.
func freeSet(t *btree.BTreeG[Addr]) []Addr {
	out := make([]Addr, 0, t.Len())
	t.Ascend(func(p Addr) bool {
		out = append(out, p)
		return true
	})
	return out
}
