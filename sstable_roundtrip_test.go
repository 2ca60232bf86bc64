package sstable

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/flashsst/sstable/internal/bloomfilter"
	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/sparseindex"
)

func writeTable(t *testing.T, opts WriteOptions, n int) (string, [][2][]byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := NewWithOptions(path, opts)
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	pairs := make([][2][]byte, 0, n)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		val := []byte(fmt.Sprintf("value-for-%06d", i))
		if err := w.Set(key, val); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
		pairs = append(pairs, [2][]byte{key, val})
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return path, pairs
}

func TestWriterReaderRoundTrip(t *testing.T) {
	for _, algo := range []Compression{CompressionNone, CompressionZlib, CompressionSnappy} {
		t.Run(fmt.Sprintf("compression=%d", algo), func(t *testing.T) {
			opts := DefaultWriteOptions()
			opts.Compression = algo
			opts.FlushEvery = 256
			path, pairs := writeTable(t, opts, 500)

			r, err := NewReader(path)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()

			for _, kv := range pairs {
				got, err := r.Get(kv[0])
				if err != nil {
					t.Fatalf("Get(%q): %v", kv[0], err)
				}
				if !bytes.Equal(got, kv[1]) {
					t.Fatalf("Get(%q) = %q, want %q", kv[0], got, kv[1])
				}
			}

			absent, err := r.Get([]byte("key-999999-absent"))
			if err != nil {
				t.Fatalf("Get absent: %v", err)
			}
			if absent != nil {
				t.Fatalf("Get absent = %q, want nil", absent)
			}
		})
	}
}

// TestIndexAndBloomRegionsUseTableCompression guards against the index and
// Bloom regions silently reverting to being written as raw, uncompressed
// bytes: for a compressed table, each region's on-disk bytes must only
// parse as a compression frame of the table's own algorithm, never
// directly as a sparseindex/Bloom buffer.
func TestIndexAndBloomRegionsUseTableCompression(t *testing.T) {
	for _, algo := range []Compression{CompressionNone, CompressionZlib, CompressionSnappy} {
		t.Run(fmt.Sprintf("compression=%d", algo), func(t *testing.T) {
			opts := DefaultWriteOptions()
			opts.Compression = algo
			opts.FlushEvery = 128
			path, _ := writeTable(t, opts, 200)

			f, err := os.Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer f.Close()

			meta, dataStart, err := readPreambleAndMeta(f)
			if err != nil {
				t.Fatalf("readPreambleAndMeta: %v", err)
			}
			offsets := computeRegionOffsets(meta, dataStart)

			rawIndex, err := readRegionAt(f, offsets.indexStart, meta.IndexLen)
			if err != nil {
				t.Fatalf("readRegionAt(index): %v", err)
			}
			rawBloom, err := readRegionAt(f, offsets.bloomStart, meta.BloomLen)
			if err != nil {
				t.Fatalf("readRegionAt(bloom): %v", err)
			}

			uncompress, err := compress.NewUncompress(compress.Algorithm(algo))
			if err != nil {
				t.Fatalf("NewUncompress: %v", err)
			}

			decodedIndex, err := uncompress(rawIndex)
			if err != nil {
				t.Fatalf("uncompress(index region): %v", err)
			}
			if _, err := sparseindex.Build(decodedIndex); err != nil {
				t.Fatalf("sparseindex.Build(decompressed index): %v", err)
			}

			decodedBloom, err := uncompress(rawBloom)
			if err != nil {
				t.Fatalf("uncompress(bloom region): %v", err)
			}
			if _, err := bloomfilter.FromParams(meta.Bloom, decodedBloom); err != nil {
				t.Fatalf("bloomfilter.FromParams(decompressed bloom): %v", err)
			}

			if algo != CompressionNone {
				if _, err := sparseindex.Build(rawIndex); err == nil {
					t.Fatal("sparseindex.Build on still-compressed index bytes: want error, got nil")
				}
				if bytes.Equal(rawBloom, decodedBloom) {
					t.Fatal("raw bloom region bytes equal decompressed bytes: region was not compressed")
				}
			}
		})
	}
}

func TestWriterReaderEmptyValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Set([]byte("a"), nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Set([]byte("b"), []byte{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	for _, key := range [][]byte{[]byte("a"), []byte("b")} {
		got, err := r.Get(key)
		if err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
		if len(got) != 0 {
			t.Fatalf("Get(%q) = %q, want empty", key, got)
		}
	}
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Set([]byte("b"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Set([]byte("a"), []byte("2")); err == nil {
		t.Fatal("Set with decreasing key: want error, got nil")
	}

	// A fresh writer, so the rejection below comes from the duplicate key
	// and not from the failed state the decreasing key left w in.
	dup, err := New(filepath.Join(t.TempDir(), "dup.sst"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := dup.Set([]byte("b"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := dup.Set([]byte("b"), []byte("1")); err == nil {
		t.Fatal("Set with duplicate key: want error, got nil")
	}
}

func TestWriterRejectsOversizedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oversized := bytes.Repeat([]byte("x"), 1<<16)
	err = w.Set(oversized, []byte("v"))
	if err == nil {
		t.Fatal("Set with oversized key: want error, got nil")
	}
	var sErr *Error
	if !errors.As(err, &sErr) || sErr.Kind != KindKeyTooLong {
		t.Fatalf("Set with oversized key: want KindKeyTooLong, got %v", err)
	}
}
