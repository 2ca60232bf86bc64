package sstformat

import (
	"bytes"
	"testing"
)

func TestMetaEncodeDecodeRoundTrip(t *testing.T) {
	want := Meta{
		DataLen:     123,
		IndexLen:    45,
		BloomLen:    6,
		Items:       789,
		Compression: CompressionZlib,
		Finished:    true,
		Checksum:    0xdeadbeef,
		Bloom: BloomParams{
			BitmapBits: 4096,
			KNum:       7,
			SipKeys:    [2][2]uint64{{1, 2}, {3, 4}},
		},
	}
	var buf bytes.Buffer
	if err := want.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != EncodedSize {
		t.Fatalf("encoded size = %d, want %d", buf.Len(), EncodedSize)
	}
	got, err := DecodeMeta(&buf)
	if err != nil {
		t.Fatalf("DecodeMeta: %v", err)
	}
	if got != want {
		t.Fatalf("DecodeMeta = %+v, want %+v", got, want)
	}
}

func TestNewKVLengthRejectsOversized(t *testing.T) {
	if _, err := NewKVLength(KeyMax+1, 0); err == nil {
		t.Fatal("NewKVLength with oversized key: want error, got nil")
	}
	if _, err := NewKVLength(0, ValueMax+1); err == nil {
		t.Fatal("NewKVLength with oversized value: want error, got nil")
	}
	if _, err := NewKVLength(KeyMax, ValueMax); err != nil {
		t.Fatalf("NewKVLength at bounds: %v", err)
	}
}

func TestScanChunkFindsAndStopsEarly(t *testing.T) {
	var buf bytes.Buffer
	records := []struct {
		key, val string
	}{
		{"a", "1"}, {"c", "2"}, {"e", "3"},
	}
	for _, r := range records {
		hdr, err := NewKVLength(len(r.key), len(r.val))
		if err != nil {
			t.Fatalf("NewKVLength: %v", err)
		}
		if err := hdr.Encode(&buf); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		buf.WriteString(r.key)
		buf.WriteString(r.val)
	}

	data := buf.Bytes()
	start, end, found, err := ScanChunk(data, []byte("c"))
	if err != nil || !found {
		t.Fatalf("ScanChunk(c) = %v, %v, %v, %v", start, end, found, err)
	}
	if string(data[start:end]) != "2" {
		t.Fatalf("ScanChunk(c) value = %q, want %q", data[start:end], "2")
	}

	_, _, found, err = ScanChunk(data, []byte("b"))
	if err != nil {
		t.Fatalf("ScanChunk(b): %v", err)
	}
	if found {
		t.Fatal("ScanChunk(b) found = true, want false (absent between a and c)")
	}

	_, _, found, err = ScanChunk(data, []byte("z"))
	if err != nil {
		t.Fatalf("ScanChunk(z): %v", err)
	}
	if found {
		t.Fatal("ScanChunk(z) found = true, want false (past last key)")
	}
}
