package bloomfilter

import (
	"fmt"
	"testing"

	"github.com/flashsst/sstable/internal/sstformat"
)

func fixedSeeder() [2][2]uint64 {
	return [2][2]uint64{{0x1111111111111111, 0x2222222222222222}, {0x3333333333333333, 0x4444444444444444}}
}

func TestNoFalseNegatives(t *testing.T) {
	f, err := New(Config{BitmapSize: 2048, ItemsCount: 100}, fixedSeeder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	keys := make([][]byte, 100)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		f.Add(keys[i])
	}
	for _, k := range keys {
		if !f.Check(k) {
			t.Fatalf("Check(%q) = false, want true (no false negatives allowed)", k)
		}
	}
}

func TestParamsRoundTrip(t *testing.T) {
	f, err := New(Config{BitmapSize: 777, ItemsCount: 40}, fixedSeeder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	keys := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for _, k := range keys {
		f.Add(k)
	}

	params := f.Params()
	raw := f.Bytes()

	rebuilt, err := FromParams(params, raw)
	if err != nil {
		t.Fatalf("FromParams: %v", err)
	}
	for _, k := range keys {
		if !rebuilt.Check(k) {
			t.Fatalf("rebuilt.Check(%q) = false, want true", k)
		}
	}
	if rebuilt.Params() != params {
		t.Fatalf("rebuilt.Params() = %+v, want %+v", rebuilt.Params(), params)
	}
}

func TestFromParamsRejectsBadBitmapLength(t *testing.T) {
	params := sstformat.BloomParams{BitmapBits: 16, KNum: 1, SipKeys: [2][2]uint64{{1, 2}, {3, 4}}}
	if _, err := FromParams(params, make([]byte, 1)); err == nil {
		t.Fatal("FromParams with mismatched raw length: want error, got nil")
	}
}

func TestFromParamsRejectsNonByteAlignedBitCount(t *testing.T) {
	params := sstformat.BloomParams{BitmapBits: 13, KNum: 1, SipKeys: [2][2]uint64{{1, 2}, {3, 4}}}
	if _, err := FromParams(params, make([]byte, 2)); err == nil {
		t.Fatal("FromParams with non-byte-aligned bit count: want error, got nil")
	}
}
