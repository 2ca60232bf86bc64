package sstable

import (
	"github.com/flashsst/sstable/internal/concurrentcache"
	"github.com/flashsst/sstable/internal/pagecache"
	"github.com/flashsst/sstable/internal/sstformat"
)

// Compression selects the codec used for every chunk in a table. A table
// records its own compression tag, so readers never need to be told which
// one was used to write it.
type Compression uint32

const (
	CompressionNone   Compression = Compression(sstformat.CompressionNone)
	CompressionZlib   Compression = Compression(sstformat.CompressionZlib)
	CompressionSnappy Compression = Compression(sstformat.CompressionSnappy)
)

// BloomConfig sizes the Bloom filter a Writer builds: bitmap size in bits,
// and the item count the false-positive rate is tuned around.
type BloomConfig struct {
	BitmapSize uint64
	ItemsCount uint64
}

// DefaultBloomConfig matches the teacher's own default Bloom sizing
// (bloom.NewWithEstimates(100000, 0.01)), scaled to this format's raw
// bitmap-bits/items-count parameterization.
func DefaultBloomConfig() BloomConfig {
	return BloomConfig{BitmapSize: 1_000_000, ItemsCount: 1_000_000}
}

// WriteOptions configures a Writer. The zero value is not valid; use
// DefaultWriteOptions or New, which applies it.
type WriteOptions struct {
	// Compression selects the codec applied to every data chunk.
	Compression Compression
	// FlushEvery is the target uncompressed size, in bytes, of each data
	// chunk before it's compressed and flushed.
	FlushEvery int
	// Bloom sizes the table's Bloom filter.
	Bloom BloomConfig
}

// DefaultWriteOptions returns the options New uses.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		Compression: CompressionNone,
		FlushEvery:  4096,
		Bloom:       DefaultBloomConfig(),
	}
}

// CachePolicy selects how a reader caches chunk bytes. Exactly one of
// CacheNone, CacheLRU, or CacheUnbounded.
type CachePolicy struct {
	none      bool
	unbounded bool
	blocks    int
}

// CacheNone disables caching: every Get re-reads and, if applicable,
// re-decompresses its chunk.
func CacheNone() CachePolicy { return CachePolicy{none: true} }

// CacheLRU bounds the cache to the given number of chunks, evicting least
// recently used entries.
func CacheLRU(blocks int) CachePolicy { return CachePolicy{blocks: blocks} }

// CacheUnbounded caches every chunk ever read, for the lifetime of the
// reader.
func CacheUnbounded() CachePolicy { return CachePolicy{unbounded: true} }

func (c CachePolicy) toPageCache() pagecache.Policy {
	if c.none {
		return pagecache.Policy{Disabled: true}
	}
	if c.unbounded {
		return pagecache.Policy{Unbounded: true}
	}
	return pagecache.Policy{Blocks: c.blocks}
}

func (c CachePolicy) toConcurrentCache(shards int) concurrentcache.Policy {
	if c.none {
		return concurrentcache.Policy{Disabled: true, Shards: shards}
	}
	if c.unbounded {
		return concurrentcache.Policy{Unbounded: true, Shards: shards}
	}
	return concurrentcache.Policy{Blocks: c.blocks, Shards: shards}
}

// ReadOptions configures a Reader or ConcurrentReader. NewMmapReader takes
// no options: an MmapReader always applies the Bloom pre-check and has no
// chunk cache.
type ReadOptions struct {
	// Cache selects the chunk-caching policy.
	Cache CachePolicy
	// ThreadBuckets sets the number of shards a ConcurrentReader's cache
	// uses. Zero means use the package default.
	ThreadBuckets int
	// UseBloom disables the Bloom filter pre-check when false, useful for
	// benchmarking the index/page-cache path in isolation.
	UseBloom bool
}

// DefaultReadOptions returns the options NewReader and NewConcurrentReader
// use.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Cache:    CacheLRU(64),
		UseBloom: true,
	}
}
