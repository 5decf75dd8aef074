// Structure of a block store file
/*
physical block 0   header: max_blocks | address_sequence | dict_array_head | free_array_head
physical block 1.. data blocks, array chain blocks, free blocks

Logical addresses are what callers see. Each one maps to a physical block
through the dict array. A logical block written for the first time since
the last commit moves to a fresh physical block, so the committed image
stays readable until the next Commit replaces the header.

- max_blocks == mapped + free + 1 (block 0 is the header)
- physical blocks handed out in a generation come from blocks that were
  free in both the committed and the current state, or from growing the file
*/
package blockstore

import (
	blockdev "ShadowDB/blockdevice"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// Addr is a logical or physical block address. 0 is never a valid logical
// address and physical 0 is the header.
type Addr int32

const (
	HeaderBlock  Addr = 0
	MinBlockSize      = 32

	treeDegree = 32
)

var (
	ErrAddressNotFound = errors.New("logical address not mapped")
	ErrCorrupted       = errors.New("block store is corrupted")
	ErrBlockSize       = errors.New("data larger than block size")
	ErrFull            = errors.New("block store address space exhausted")
)

type mapping struct {
	Logical  Addr
	Physical Addr
}

func byLogical(a, b mapping) bool { return a.Logical < b.Logical }

// state is one generation of the store. The ordered trees are cloned
// lazily, so a published state is never copied wholesale.
type state struct {
	maxBlocks Addr
	sequence  Addr
	mapping   *btree.BTreeG[mapping]
	free      *btree.BTreeG[Addr]
	arrays    []Addr // logical addresses of the chain blocks written by the last commit
}

func newState() *state {
	return &state{
		maxBlocks: 1,
		mapping:   btree.NewG(treeDegree, byLogical),
		free:      btree.NewOrderedG[Addr](treeDegree),
	}
}

func (s *state) clone() *state {
	return &state{
		maxBlocks: s.maxBlocks,
		sequence:  s.sequence,
		mapping:   s.mapping.Clone(),
		free:      s.free.Clone(),
		arrays:    append([]Addr(nil), s.arrays...),
	}
}

func (s *state) physical(logical Addr) (Addr, bool) {
	m, ok := s.mapping.Get(mapping{Logical: logical})
	return m.Physical, ok
}

// Store is a single-writer logical block store with shadow paging.
// It is not safe for concurrent use.
type Store struct {
	dev       blockdev.Device
	blockSize int

	committed *state
	current   *state
	// safe holds physical blocks free in both committed and current.
	safe  *btree.BTreeG[Addr]
	dirty bool
}

type Stats struct {
	MaxBlocks       int
	AddressSequence int
	Mapped          int
	Free            int
	SafeFree        int
}
