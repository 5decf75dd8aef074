package blockdev

import (
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
)

type CacheOptions struct {
	MaxBlocks int64 // cache budget, counted in blocks
	Metrics   bool
}

// CachedDevice keeps recently read blocks in a ristretto cache.
// Writes go straight to the wrapped device and drop the cached copy;
// the cache is only ever filled on a read miss.
type CachedDevice struct {
	dev   Device
	cache *ristretto.Cache[int, []byte]
}

func NewCachedDevice(dev Device, opts CacheOptions) (*CachedDevice, error) {
	if opts.MaxBlocks <= 0 {
		return nil, errors.Newf("cache needs a positive block budget, got %d", opts.MaxBlocks)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[int, []byte]{
		NumCounters:        opts.MaxBlocks * 10,
		MaxCost:            opts.MaxBlocks,
		BufferItems:        64,
		Metrics:            opts.Metrics,
		IgnoreInternalCost: true, // MaxCost counts blocks
	})
	if err != nil {
		return nil, errors.Wrap(err, "create block cache")
	}
	return &CachedDevice{dev: dev, cache: cache}, nil
}

func (d *CachedDevice) BlockSize() int {
	return d.dev.BlockSize()
}

func (d *CachedDevice) ReadBlock(idx int, buf []byte) error {
	if data, ok := d.cache.Get(idx); ok && len(data) == len(buf) {
		copy(buf, data)
		return nil
	}
	if err := d.dev.ReadBlock(idx, buf); err != nil {
		return err
	}
	d.cache.Set(idx, append([]byte(nil), buf...), 1)
	return nil
}

func (d *CachedDevice) WriteBlock(idx int, buf []byte) error {
	err := d.dev.WriteBlock(idx, buf)
	// Drop the entry even on failure: the device state is unknown.
	// Wait makes sure a fill queued by an earlier miss is applied before
	// the delete, so no later read can see the old bytes.
	d.cache.Del(idx)
	d.cache.Wait()
	return err
}

func (d *CachedDevice) Flush() error {
	return d.dev.Flush()
}

// HitRatio is only meaningful when the cache was created with Metrics.
func (d *CachedDevice) HitRatio() float64 {
	if d.cache.Metrics == nil {
		return 0
	}
	return d.cache.Metrics.Ratio()
}

// Close releases the cache and closes the wrapped device if it can be closed.
func (d *CachedDevice) Close() error {
	d.cache.Close()
	if c, ok := d.dev.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
