package sstable

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestReaderRejectsUnfinishedTable writes a table but never calls Finish,
// leaving its metadata block's Finished flag false, and checks that opening
// it for reading is rejected rather than silently serving a half-written
// file.
func TestReaderRejectsUnfinishedTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Close the file handle directly without going through Finish, so the
	// placeholder metadata block (Finished: false) is left on disk.
	if err := w.f.Close(); err != nil {
		t.Fatalf("f.Close: %v", err)
	}

	if _, err := NewReader(path); err == nil {
		t.Fatal("NewReader on unfinished table: want error, got nil")
	} else {
		var sErr *Error
		if !errors.As(err, &sErr) || sErr.Kind != KindInvalidData {
			t.Fatalf("NewReader on unfinished table: want KindInvalidData, got %v", err)
		}
	}
}

func TestWriterRejectsUseAfterFinish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := w.Set([]byte("b"), []byte("2")); err == nil {
		t.Fatal("Set after Finish: want error, got nil")
	}
	if err := w.Finish(); err == nil {
		t.Fatal("Finish after Finish: want error, got nil")
	}
}

func TestWriterRejectsUseAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Set([]byte("b"), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Set([]byte("a"), []byte("2")); err == nil {
		t.Fatal("Set out of order: want error, got nil")
	}
	if err := w.Finish(); err == nil {
		t.Fatal("Finish after failed Set: want error, got nil")
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
