package btree

import "github.com/cockroachdb/errors"

// Config sets the fan-out of inner and leaf pages separately. A node is
// full at Order keys and low at or below LowWaterMark keys.
type Config struct {
	InnerOrder        int
	InnerLowWaterMark int
	LeafOrder         int
	LeafLowWaterMark  int
}

// Config234 is the small configuration used by the interactive demo.
var Config234 = Config{InnerOrder: 5, InnerLowWaterMark: 2, LeafOrder: 5, LeafLowWaterMark: 2}

// ConfigFor returns the widest configuration whose nodes fit one block.
func ConfigFor(blockSize, keyWidth int) Config {
	leaf := (blockSize - nodeHeaderSize) / keyWidth
	inner := (blockSize - nodeHeaderSize - childEntrySize) / (keyWidth + childEntrySize)
	return Config{
		InnerOrder:        inner,
		InnerLowWaterMark: (inner - 1) / 2,
		LeafOrder:         leaf,
		LeafLowWaterMark:  (leaf - 1) / 2,
	}
}

func (c Config) order(isLeaf bool) int {
	if isLeaf {
		return c.LeafOrder
	}
	return c.InnerOrder
}

func (c Config) lowWaterMark(isLeaf bool) int {
	if isLeaf {
		return c.LeafLowWaterMark
	}
	return c.InnerLowWaterMark
}

// Validate checks that splits and merges always produce legal nodes and
// that both node kinds fit in a block.
func (c Config) Validate(blockSize, keyWidth int) error {
	for _, isLeaf := range []bool{true, false} {
		kind := "inner"
		if isLeaf {
			kind = "leaf"
		}
		order, lwm := c.order(isLeaf), c.lowWaterMark(isLeaf)
		switch {
		case lwm < 1:
			return errors.Wrapf(ErrBadConfig, "%s low water mark %d must be at least 1", kind, lwm)
		case (order-1)/2 < lwm:
			return errors.Wrapf(ErrBadConfig, "%s order %d too small to split above low water mark %d", kind, order, lwm)
		case 2*lwm+1 > order:
			return errors.Wrapf(ErrBadConfig, "%s order %d cannot hold a merge of two low nodes (low water mark %d)", kind, order, lwm)
		}
		if n := encodedNodeSize(isLeaf, order, keyWidth); n > blockSize {
			return errors.Wrapf(ErrBadConfig, "%s node needs %d bytes, block size %d", kind, n, blockSize)
		}
	}
	return nil
}
