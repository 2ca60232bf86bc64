package sstable

import (
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/flashsst/sstable/internal/bloomfilter"
	"github.com/flashsst/sstable/internal/pagecache"
	"github.com/flashsst/sstable/internal/sparseindex"
	"github.com/flashsst/sstable/internal/sstformat"
)

// MmapReader serves point lookups against a finished, uncompressed table by
// memory-mapping it once at open time. Every Get is a pure function over
// the mapped bytes: no locks, no page cache, no allocation beyond the
// returned value copy.
type MmapReader struct {
	f        *os.File
	m        mmap.MMap
	useBloom bool

	index   *sparseindex.Index
	bloom   *bloomfilter.Filter
	cache   *pagecache.StaticBuf
	offsets regionOffsets
}

// NewMmapReader opens path for reading via mmap. It returns
// KindIncompatibleReaderForFormat if the table was written with
// compression.
func NewMmapReader(path string) (*MmapReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO("sstable.NewMmapReader", err)
	}

	meta, dataStart, err := readPreambleAndMeta(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if Compression(meta.Compression) != CompressionNone {
		f.Close()
		return nil, newErr("sstable.NewMmapReader", KindIncompatibleReaderForFormat, errMmapCompressed)
	}
	offsets := computeRegionOffsets(meta, dataStart)

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, wrapIO("sstable.NewMmapReader", err)
	}
	if offsets.end > uint64(len(m)) {
		m.Unmap()
		f.Close()
		return nil, invalidData("sstable.NewMmapReader", "table shorter than its declared regions")
	}

	indexBuf := m[offsets.indexStart:offsets.bloomStart]
	index, err := sparseindex.Build(indexBuf)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, wrapInternal("sstable.NewMmapReader", err)
	}

	bloomBuf := m[offsets.bloomStart:offsets.end]
	filter, err := bloomfilter.FromParams(meta.Bloom, bloomBuf)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, wrapInternal("sstable.NewMmapReader", err)
	}

	return &MmapReader{
		f:        f,
		m:        m,
		useBloom: true,
		index:    index,
		bloom:    filter,
		cache:    pagecache.NewStaticBuf(m),
		offsets:  offsets,
	}, nil
}

// Get returns the value stored for key, or (nil, nil) if key is absent.
// Safe to call concurrently from many goroutines.
func (r *MmapReader) Get(key []byte) ([]byte, error) {
	if r.useBloom && !r.bloom.Check(key) {
		return nil, nil
	}
	start, end, ok := r.index.Lookup(key, r.offsets.indexStart)
	if !ok {
		return nil, nil
	}
	chunk, err := r.cache.GetChunk(start, end-start)
	if err != nil {
		return nil, wrapInternal("sstable.MmapReader.Get", err)
	}
	valStart, valEnd, found, err := sstformat.ScanChunk(chunk, key)
	if err != nil {
		return nil, wrapInternal("sstable.MmapReader.Get", err)
	}
	if !found {
		return nil, nil
	}
	out := make([]byte, valEnd-valStart)
	copy(out, chunk[valStart:valEnd])
	return out, nil
}

// Close unmaps the table and closes the underlying file handle.
func (r *MmapReader) Close() error {
	if err := r.m.Unmap(); err != nil {
		r.f.Close()
		return wrapIO("sstable.MmapReader.Close", err)
	}
	return wrapIO("sstable.MmapReader.Close", r.f.Close())
}
