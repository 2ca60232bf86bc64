// Package concurrentcache implements the thread-safe page-cache hierarchy
// used by the concurrent reader variant: a sharded LRU over a positional
// reader, with single-flight miss collapsing so concurrent requests for the
// same chunk never duplicate disk I/O or decompression work, and a wrapping
// layer that decompresses on miss.
package concurrentcache

import (
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/ierrs"
)

// Cache returns the (possibly decompressed) bytes of the chunk starting at
// offset and spanning length bytes, safe for concurrent use by many
// goroutines.
type Cache interface {
	GetChunk(offset, length uint64) ([]byte, error)
}

// Policy mirrors sstable.CachePolicy without importing the root package.
type Policy struct {
	Disabled  bool
	Unbounded bool
	Blocks    int // when bounded, split evenly across shards: Blocks/shards each, rounded down, at least 1
	Shards    int // number of cache shards; runtime.NumCPU() when zero
}

func (p Policy) shardCount() int {
	if p.Shards > 0 {
		return p.Shards
	}
	return runtime.NumCPU()
}

// ReaderAt is the minimal positional-read contract FileBacked needs; an
// *os.File satisfies it.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

type shard struct {
	mu        sync.Mutex
	disabled  bool
	bounded   *lru.LRU[uint64, []byte]
	unbounded map[uint64][]byte
	group     singleflight.Group
}

func newShard(disabled, unbounded bool, capacity int) *shard {
	s := &shard{disabled: disabled}
	if disabled {
		return s
	}
	if unbounded {
		s.unbounded = make(map[uint64][]byte)
		return s
	}
	if capacity <= 0 {
		capacity = 1
	}
	l, _ := lru.NewLRU[uint64, []byte](capacity, nil)
	s.bounded = l
	return s
}

func (s *shard) get(offset uint64) ([]byte, bool) {
	if s.disabled {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unbounded != nil {
		v, ok := s.unbounded[offset]
		return v, ok
	}
	return s.bounded.Get(offset)
}

func (s *shard) put(offset uint64, buf []byte) {
	if s.disabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unbounded != nil {
		s.unbounded[offset] = buf
		return
	}
	s.bounded.Add(offset, buf)
}

// shardedStore is the sharded, singleflight-deduplicated storage shared by
// FileBacked and Uncompressing.
type shardedStore struct {
	shards []*shard
}

func newShardedStore(policy Policy) *shardedStore {
	n := policy.shardCount()
	perShard := 0
	if !policy.Disabled && !policy.Unbounded {
		perShard = policy.Blocks / n
		if perShard <= 0 {
			perShard = 1
		}
	}
	st := &shardedStore{shards: make([]*shard, n)}
	for i := range st.shards {
		st.shards[i] = newShard(policy.Disabled, policy.Unbounded, perShard)
	}
	return st
}

func (st *shardedStore) shardFor(offset uint64) *shard {
	h := xxhash.Sum64String(shardKey(offset))
	return st.shards[h%uint64(len(st.shards))]
}

// getOrCompute serves offset from cache, or computes it exactly once across
// all concurrently-racing callers via the shard's singleflight group.
func (st *shardedStore) getOrCompute(offset uint64, compute func() ([]byte, error)) ([]byte, error) {
	s := st.shardFor(offset)
	if buf, ok := s.get(offset); ok {
		return buf, nil
	}
	v, err, _ := s.group.Do(shardKey(offset), func() (any, error) {
		if buf, ok := s.get(offset); ok {
			return buf, nil
		}
		buf, err := compute()
		if err != nil {
			return nil, err
		}
		s.put(offset, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func shardKey(offset uint64) string {
	var buf [8]byte
	buf[0] = byte(offset)
	buf[1] = byte(offset >> 8)
	buf[2] = byte(offset >> 16)
	buf[3] = byte(offset >> 24)
	buf[4] = byte(offset >> 32)
	buf[5] = byte(offset >> 40)
	buf[6] = byte(offset >> 48)
	buf[7] = byte(offset >> 56)
	return string(buf[:])
}

// FileBacked serves chunks from a positional reader, caching raw bytes in a
// sharded LRU and collapsing concurrent misses for the same offset into a
// single ReadAt.
type FileBacked struct {
	r     ReaderAt
	store *shardedStore
}

func NewFileBacked(r ReaderAt, policy Policy) *FileBacked {
	return &FileBacked{r: r, store: newShardedStore(policy)}
}

func (c *FileBacked) GetChunk(offset, length uint64) ([]byte, error) {
	return c.store.getOrCompute(offset, func() ([]byte, error) {
		buf := make([]byte, length)
		if err := readFull(c.r, buf, int64(offset)); err != nil {
			return nil, ierrs.IO("read chunk", err)
		}
		return buf, nil
	})
}

func readFull(r ReaderAt, buf []byte, off int64) error {
	total := 0
	for total < len(buf) {
		n, err := r.ReadAt(buf[total:], off+int64(total))
		total += n
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// Uncompressing wraps another Cache, decompressing each miss with
// uncompress and caching the uncompressed bytes in its own sharded store,
// collapsing concurrent decompression of the same chunk into one call.
type Uncompressing struct {
	inner      Cache
	uncompress compress.Uncompress
	store      *shardedStore
}

func NewUncompressing(inner Cache, uncompress compress.Uncompress, policy Policy) *Uncompressing {
	return &Uncompressing{inner: inner, uncompress: uncompress, store: newShardedStore(policy)}
}

func (c *Uncompressing) GetChunk(offset, length uint64) ([]byte, error) {
	return c.store.getOrCompute(offset, func() ([]byte, error) {
		compressed, err := c.inner.GetChunk(offset, length)
		if err != nil {
			return nil, err
		}
		return c.uncompress(compressed)
	})
}
