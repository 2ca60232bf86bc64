package sstable

import (
	"os"

	"github.com/flashsst/sstable/internal/bloomfilter"
	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/pagecache"
	"github.com/flashsst/sstable/internal/sparseindex"
	"github.com/flashsst/sstable/internal/sstformat"
)

// Reader serves point lookups against a finished table. It is not safe for
// concurrent use: its page cache is unlocked.
type Reader struct {
	f        *os.File
	useBloom bool

	index   *sparseindex.Index
	bloom   *bloomfilter.Filter
	cache   pagecache.Cache
	offsets regionOffsets
}

// NewReader opens path for reading with DefaultReadOptions.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, DefaultReadOptions())
}

// NewReaderWithOptions opens path for reading with opts.
func NewReaderWithOptions(path string, opts ReadOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO("sstable.NewReaderWithOptions", err)
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
			return nil, wrapInternal("sstable.NewReaderWithOptions", err)
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
		return nil, wrapInternal("sstable.NewReaderWithOptions", err)
	}

	bloomBuf, err := readAndDecompressRegion(f, offsets.bloomStart, meta.BloomLen, uncompress)
	if err != nil {
		f.Close()
		return nil, err
	}
	filter, err := bloomfilter.FromParams(meta.Bloom, bloomBuf)
	if err != nil {
		f.Close()
		return nil, wrapInternal("sstable.NewReaderWithOptions", err)
	}

	raw := pagecache.NewReadThrough(f, opts.Cache.toPageCache())
	var cache pagecache.Cache = raw
	if uncompress != nil {
		cache = pagecache.NewUncompressing(raw, uncompress, opts.Cache.toPageCache())
	}

	return &Reader{
		f:        f,
		useBloom: opts.UseBloom,
		index:    index,
		bloom:    filter,
		cache:    cache,
		offsets:  offsets,
	}, nil
}

// Get returns the value stored for key, or (nil, nil) if key is absent.
func (r *Reader) Get(key []byte) ([]byte, error) {
	if r.useBloom && !r.bloom.Check(key) {
		return nil, nil
	}
	start, end, ok := r.index.Lookup(key, r.offsets.indexStart)
	if !ok {
		return nil, nil
	}
	chunk, err := r.cache.GetChunk(start, end-start)
	if err != nil {
		return nil, wrapInternal("sstable.Reader.Get", err)
	}
	valStart, valEnd, found, err := sstformat.ScanChunk(chunk, key)
	if err != nil {
		return nil, wrapInternal("sstable.Reader.Get", err)
	}
	if !found {
		return nil, nil
	}
	out := make([]byte, valEnd-valStart)
	copy(out, chunk[valStart:valEnd])
	return out, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return wrapIO("sstable.Reader.Close", r.f.Close())
}
