package blockstore

import "github.com/cockroachdb/errors"

var ErrInvariant = errors.New("block store invariant violated")

func (s *Store) Stats() Stats {
	return Stats{
		MaxBlocks:       int(s.current.maxBlocks),
		AddressSequence: int(s.current.sequence),
		Mapped:          s.current.mapping.Len(),
		Free:            s.current.free.Len(),
		SafeFree:        s.safe.Len(),
	}
}

// Mappings returns a copy of the current logical to physical mapping.
func (s *Store) Mappings() map[Addr]Addr {
	out := make(map[Addr]Addr, s.current.mapping.Len())
	s.current.mapping.Ascend(func(m mapping) bool {
		out[m.Logical] = m.Physical
		return true
	})
	return out
}

// FreeBlocks returns the current free physical blocks in ascending order.
func (s *Store) FreeBlocks() []Addr {
	return freeSet(s.current.free)
}

// Validate re-checks the in-memory invariants of the current generation.
func (s *Store) Validate() error {
	cur := s.current
	if got := cur.mapping.Len() + cur.free.Len() + 1; got != int(cur.maxBlocks) {
		return invariantf("max blocks %d but %d mapped + %d free + 1", cur.maxBlocks, cur.mapping.Len(), cur.free.Len())
	}

	used := make(map[Addr]Addr, cur.mapping.Len())
	var err error
	cur.mapping.Ascend(func(m mapping) bool {
		switch {
		case m.Logical < 1 || m.Logical > cur.sequence:
			err = invariantf("logical %d outside [1, %d]", m.Logical, cur.sequence)
		case m.Physical < 1 || m.Physical >= cur.maxBlocks:
			err = invariantf("logical %d maps to physical %d outside [1, %d)", m.Logical, m.Physical, cur.maxBlocks)
		default:
			if other, dup := used[m.Physical]; dup {
				err = invariantf("physical %d shared by logical %d and %d", m.Physical, other, m.Logical)
			}
			used[m.Physical] = m.Logical
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	cur.free.Ascend(func(p Addr) bool {
		if p < 1 || p >= cur.maxBlocks {
			err = invariantf("free physical %d outside [1, %d)", p, cur.maxBlocks)
		} else if l, dup := used[p]; dup {
			err = invariantf("free physical %d still mapped by logical %d", p, l)
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	s.safe.Ascend(func(p Addr) bool {
		if !cur.free.Has(p) || !s.unreferenced(p) {
			err = invariantf("safe physical %d is not free or still committed", p)
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	for _, l := range cur.arrays {
		if _, ok := cur.physical(l); !ok {
			return invariantf("array block logical %d not mapped", l)
		}
	}
	return nil
}

func invariantf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvariant)
}
