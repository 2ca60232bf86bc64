package sstable

import (
	"fmt"
	"path/filepath"
	"testing"
)

// TestBloomFilterNoFalseNegatives writes every key with UseBloom enabled and
// checks that the Bloom pre-check never rejects a key that was actually
// written — a false negative there would make Get wrongly report "absent".
func TestBloomFilterNoFalseNegatives(t *testing.T) {
	opts := DefaultWriteOptions()
	opts.Bloom = BloomConfig{BitmapSize: 4096, ItemsCount: 200}
	path, pairs := writeTable(t, opts, 200)

	readOpts := DefaultReadOptions()
	readOpts.UseBloom = true
	r, err := NewReaderWithOptions(path, readOpts)
	if err != nil {
		t.Fatalf("NewReaderWithOptions: %v", err)
	}
	defer r.Close()

	for _, kv := range pairs {
		got, err := r.Get(kv[0])
		if err != nil {
			t.Fatalf("Get(%q): %v", kv[0], err)
		}
		if got == nil {
			t.Fatalf("Get(%q) = nil, want %q (Bloom false negative)", kv[0], kv[1])
		}
	}
}

// TestBloomFilterOddBitmapSize exercises the round-up-to-a-multiple-of-8
// path with a bitmap size that isn't already byte aligned.
func TestBloomFilterOddBitmapSize(t *testing.T) {
	opts := DefaultWriteOptions()
	opts.Bloom = BloomConfig{BitmapSize: 13, ItemsCount: 50}
	path, pairs := writeTable(t, opts, 50)

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
		if got == nil {
			t.Fatalf("Get(%q) = nil, want %q", kv[0], kv[1])
		}
	}
}

func TestBloomFilterDisabledStillFindsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := w.Set([]byte(fmt.Sprintf("k%02d", i)), []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	readOpts := DefaultReadOptions()
	readOpts.UseBloom = false
	r, err := NewReaderWithOptions(path, readOpts)
	if err != nil {
		t.Fatalf("NewReaderWithOptions: %v", err)
	}
	defer r.Close()

	got, err := r.Get([]byte("k05"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get(k05) = %q, want %q", got, "v")
	}
}
