// Package sparseindex implements the ordered key -> chunk-offset mapping
// built from a table's index region: one entry per chunk, keyed by that
// chunk's first key.
//
// The original design (see original_source/src/sstable/reader.rs) splits
// this into a "borrowed" variant, whose entries are zero-copy slices into
// an mmap'd region with a lifetime tied to the reader, and an "owned"
// variant, whose entries point into a heap buffer decompressed at open
// time. In Go both collapse onto the same representation: a []byte arena
// (whether backed by an mmap or a plain allocation makes no difference to
// a slice) plus a list of (start, length, offset) triples resolved to
// sub-slices of that arena on lookup. This is the "arena-plus-index"
// scheme spec.md calls for languages without Rust's self-referential-struct
// idiom.
package sparseindex

import (
	"bytes"

	"github.com/flashsst/sstable/internal/ierrs"
	"github.com/flashsst/sstable/internal/sstformat"
)

// entry is one parsed index record: the chunk's first key, as a
// (start,length) slice into the shared arena, and the chunk's byte offset.
type entry struct {
	keyStart int
	keyLen   int
	offset   uint64
}

// Index is the parsed sparse index: an ascending-by-key list of
// (first key, chunk offset) pairs, all referencing a shared byte arena.
type Index struct {
	arena   []byte
	entries []entry
}

// Build parses buf (the fully decompressed index region) into an Index.
// buf is retained by reference, not copied; callers decide whether it's an
// mmap slice (variant A) or an owned decompressed buffer (variant B) — the
// parsing and lookup logic is identical either way.
func Build(buf []byte) (*Index, error) {
	idx := &Index{arena: buf}
	offset := 0
	var prevKey []byte
	var prevOffset uint64
	first := true
	for offset < len(buf) {
		hdr, err := sstformat.DecodeKVOffsetFromBuf(buf[offset:])
		if err != nil {
			return nil, err
		}
		keyStart := offset + sstformat.KVOffsetEncodedSize
		keyEnd := keyStart + int(hdr.KeyLength)
		if keyEnd > len(buf) {
			return nil, ierrs.InvalidData("sparse index entry key overruns index region")
		}
		key := buf[keyStart:keyEnd]
		if !first {
			if bytes.Compare(key, prevKey) <= 0 {
				return nil, ierrs.InvalidData("sparse index keys are not strictly increasing")
			}
			if hdr.Offset <= prevOffset {
				return nil, ierrs.InvalidData("sparse index offsets are not strictly increasing")
			}
		}
		idx.entries = append(idx.entries, entry{keyStart: keyStart, keyLen: int(hdr.KeyLength), offset: hdr.Offset})
		prevKey = key
		prevOffset = hdr.Offset
		first = false
		offset = keyEnd
	}
	if offset != len(buf) {
		return nil, ierrs.InvalidData("residual bytes after sparse index entries")
	}
	return idx, nil
}

func (idx *Index) key(i int) []byte {
	e := idx.entries[i]
	return idx.arena[e.keyStart : e.keyStart+e.keyLen]
}

// Lookup implements the spec's "greatest indexed key <= query / least
// indexed key > query" contract. ok is false when query sorts before every
// indexed key, meaning it's definitely absent from the table.
func (idx *Index) Lookup(query []byte, indexRegionStart uint64) (start, end uint64, ok bool) {
	n := len(idx.entries)
	// binary search for the first entry whose key is > query.
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(idx.key(mid), query) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	// lo is the index of the first entry with key > query; lo-1 is the
	// greatest entry with key <= query.
	if lo == 0 {
		return 0, 0, false
	}
	start = idx.entries[lo-1].offset
	if lo < n {
		end = idx.entries[lo].offset
	} else {
		end = indexRegionStart
	}
	return start, end, true
}

// Len returns the number of chunks indexed.
func (idx *Index) Len() int {
	return len(idx.entries)
}
