package sstable

import (
	"os"

	"github.com/flashsst/sstable/internal/bloomfilter"
	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/concurrentcache"
	"github.com/flashsst/sstable/internal/sparseindex"
	"github.com/flashsst/sstable/internal/sstformat"
)

// ConcurrentReader serves point lookups against a finished table and is
// safe for concurrent use by many goroutines: its page cache is sharded and
// collapses concurrent misses for the same chunk into a single read.
type ConcurrentReader struct {
	f        *os.File
	useBloom bool

	index   *sparseindex.Index
	bloom   *bloomfilter.Filter
	cache   concurrentcache.Cache
	offsets regionOffsets
}

// NewConcurrentReader opens path for reading with DefaultReadOptions.
func NewConcurrentReader(path string) (*ConcurrentReader, error) {
	return NewConcurrentReaderWithOptions(path, DefaultReadOptions())
}

// NewConcurrentReaderWithOptions opens path for reading with opts.
func NewConcurrentReaderWithOptions(path string, opts ReadOptions) (*ConcurrentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO("sstable.NewConcurrentReaderWithOptions", err)
	}

	meta, dataStart, err := readPreambleAndMeta(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	offsets := computeRegionOffsets(meta, dataStart)

	var uncompress compress.Uncompress
	if Compression(meta.Compression) != CompressionNone {
		uncompress, err = compress.NewUncompress(compress.Algorithm(meta.Compression))
		if err != nil {
			f.Close()
			return nil, wrapInternal("sstable.NewConcurrentReaderWithOptions", err)
		}
	}

	indexBuf, err := readAndDecompressRegion(f, offsets.indexStart, meta.IndexLen, uncompress)
	if err != nil {
		f.Close()
		return nil, err
	}
	index, err := sparseindex.Build(indexBuf)
	if err != nil {
		f.Close()
		return nil, wrapInternal("sstable.NewConcurrentReaderWithOptions", err)
	}

	bloomBuf, err := readAndDecompressRegion(f, offsets.bloomStart, meta.BloomLen, uncompress)
	if err != nil {
		f.Close()
		return nil, err
	}
	filter, err := bloomfilter.FromParams(meta.Bloom, bloomBuf)
	if err != nil {
		f.Close()
		return nil, wrapInternal("sstable.NewConcurrentReaderWithOptions", err)
	}

	raw := concurrentcache.NewFileBacked(f, opts.Cache.toConcurrentCache(opts.ThreadBuckets))
	var cache concurrentcache.Cache = raw
	if uncompress != nil {
		cache = concurrentcache.NewUncompressing(raw, uncompress, opts.Cache.toConcurrentCache(opts.ThreadBuckets))
	}

	return &ConcurrentReader{
		f:        f,
		useBloom: opts.UseBloom,
		index:    index,
		bloom:    filter,
		cache:    cache,
		offsets:  offsets,
	}, nil
}

// Get returns the value stored for key, or (nil, nil) if key is absent.
// Safe to call concurrently from many goroutines.
func (r *ConcurrentReader) Get(key []byte) ([]byte, error) {
	if r.useBloom && !r.bloom.Check(key) {
		return nil, nil
	}
	start, end, ok := r.index.Lookup(key, r.offsets.indexStart)
	if !ok {
		return nil, nil
	}
	chunk, err := r.cache.GetChunk(start, end-start)
	if err != nil {
		return nil, wrapInternal("sstable.ConcurrentReader.Get", err)
	}
	valStart, valEnd, found, err := sstformat.ScanChunk(chunk, key)
	if err != nil {
		return nil, wrapInternal("sstable.ConcurrentReader.Get", err)
	}
	if !found {
		return nil, nil
	}
	out := make([]byte, valEnd-valStart)
	copy(out, chunk[valStart:valEnd])
	return out, nil
}

// Close releases the underlying file handle.
func (r *ConcurrentReader) Close() error {
	return wrapIO("sstable.ConcurrentReader.Close", r.f.Close())
}
