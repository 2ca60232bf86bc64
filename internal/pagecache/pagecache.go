// Package pagecache implements the single-threaded, &mut self page-cache
// hierarchy used by the non-concurrent reader variant: a bounds-checked
// mmap slice, a read-through LRU over a seekable file, and a wrapping layer
// that decompresses on miss.
package pagecache

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/ierrs"
)

// Cache returns the (possibly decompressed) bytes of the chunk starting at
// offset and spanning length bytes on disk.
type Cache interface {
	GetChunk(offset, length uint64) ([]byte, error)
}

// Policy mirrors sstable.CachePolicy without importing the root package.
type Policy struct {
	Disabled  bool
	Unbounded bool
	Blocks    int // only meaningful when Disabled and Unbounded are both false
}

// StaticBuf serves chunks as bounds-checked slices of an in-memory buffer
// (the mmap region for uncompressed tables). No I/O, no allocation, no
// caching — the buffer itself is the cache.
type StaticBuf struct {
	buf []byte
}

func NewStaticBuf(buf []byte) *StaticBuf {
	return &StaticBuf{buf: buf}
}

func (s *StaticBuf) GetChunk(offset, length uint64) ([]byte, error) {
	end := offset + length
	if end > uint64(len(s.buf)) || end < offset {
		return nil, ierrs.InvalidData("chunk range out of bounds")
	}
	return s.buf[offset:end], nil
}

// blockLRU is the shared, unlocked LRU storage used by ReadThrough and
// Uncompressing: either a bounded simplelru.LRU or an unbounded map,
// selected once at construction from Policy.
type blockLRU struct {
	disabled  bool
	bounded   *lru.LRU[uint64, []byte]
	unbounded map[uint64][]byte
}

func newBlockLRU(policy Policy) *blockLRU {
	if policy.Disabled {
		return &blockLRU{disabled: true}
	}
	if policy.Unbounded {
		return &blockLRU{unbounded: make(map[uint64][]byte)}
	}
	blocks := policy.Blocks
	if blocks <= 0 {
		blocks = 1
	}
	l, _ := lru.NewLRU[uint64, []byte](blocks, nil)
	return &blockLRU{bounded: l}
}

func (c *blockLRU) get(offset uint64) ([]byte, bool) {
	if c.disabled {
		return nil, false
	}
	if c.unbounded != nil {
		v, ok := c.unbounded[offset]
		return v, ok
	}
	return c.bounded.Get(offset)
}

func (c *blockLRU) put(offset uint64, buf []byte) {
	if c.disabled {
		return
	}
	if c.unbounded != nil {
		c.unbounded[offset] = buf
		return
	}
	c.bounded.Add(offset, buf)
}

// ReaderAt is the minimal positional-read contract ReadThrough needs; an
// *os.File satisfies it.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// ReadThrough serves chunks from a seekable/positional-read file, caching
// the raw (possibly still-compressed) bytes under an LRU keyed by offset.
type ReadThrough struct {
	r     ReaderAt
	cache *blockLRU
}

func NewReadThrough(r ReaderAt, policy Policy) *ReadThrough {
	return &ReadThrough{r: r, cache: newBlockLRU(policy)}
}

func (c *ReadThrough) GetChunk(offset, length uint64) ([]byte, error) {
	if buf, ok := c.cache.get(offset); ok {
		return buf, nil
	}
	buf := make([]byte, length)
	if _, err := readFull(c.r, buf, int64(offset)); err != nil {
		return nil, ierrs.IO("read chunk", err)
	}
	c.cache.put(offset, buf)
	return buf, nil
}

func readFull(r ReaderAt, buf []byte, off int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.ReadAt(buf[total:], off+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Uncompressing wraps another Cache, decompressing each miss with
// uncompress and caching the uncompressed bytes under its own LRU keyed by
// the same offset.
type Uncompressing struct {
	inner      Cache
	uncompress compress.Uncompress
	cache      *blockLRU
}

func NewUncompressing(inner Cache, uncompress compress.Uncompress, policy Policy) *Uncompressing {
	return &Uncompressing{inner: inner, uncompress: uncompress, cache: newBlockLRU(policy)}
}

func (c *Uncompressing) GetChunk(offset, length uint64) ([]byte, error) {
	if buf, ok := c.cache.get(offset); ok {
		return buf, nil
	}
	compressed, err := c.inner.GetChunk(offset, length)
	if err != nil {
		return nil, err
	}
	buf, err := c.uncompress(compressed)
	if err != nil {
		return nil, err
	}
	c.cache.put(offset, buf)
	return buf, nil
}
