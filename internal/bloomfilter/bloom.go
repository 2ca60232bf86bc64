// Package bloomfilter implements the fixed-size Bloom filter stored inside
// every table: a bit array sized at write time from an expected item count,
// populated on every insert, and serialized as a raw bitmap that a reader
// can reconstruct bit-exactly from four parameters alone (bit count, hash
// count, two keyed-hash seeds).
package bloomfilter

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/flashsst/sstable/internal/ierrs"
	"github.com/flashsst/sstable/internal/sstformat"
)

// Filter is a Bloom filter with no false negatives: Check never returns
// false for a key that was Add-ed.
type Filter struct {
	bits *bitset.BitSet
	m    uint64 // bitmap bit count; authoritative over bits.Len(), which
	// bitset.From rounds up to a 64-bit word boundary
	k    uint32
	keys [2][2]uint64
}

// Config mirrors sstable.BloomConfig: the sizing inputs a writer uses to
// build a fresh Filter.
type Config struct {
	BitmapSize uint64 // in bits
	ItemsCount uint64
}

// Seeder supplies the two random 128-bit SipHash keys a freshly constructed
// Filter uses. Tests substitute a deterministic seeder; production uses
// RandomSeeder.
type Seeder func() [2][2]uint64

// New builds an empty Filter sized from cfg, deriving the hash-function
// count from the classic m/n*ln(2) optimum.
func New(cfg Config, seed Seeder) (*Filter, error) {
	bits := cfg.BitmapSize
	if bits == 0 {
		bits = 1
	}
	// round up to a multiple of 8 so the serialized bitmap is byte-aligned.
	if bits%8 != 0 {
		bits += 8 - (bits % 8)
	}
	items := cfg.ItemsCount
	if items == 0 {
		items = 1
	}
	k := uint32(math.Round(float64(bits) / float64(items) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &Filter{
		bits: bitset.New(uint(bits)),
		m:    bits,
		k:    k,
		keys: seed(),
	}, nil
}

// Params returns the metadata needed to reconstruct this filter on read.
func (f *Filter) Params() sstformat.BloomParams {
	return sstformat.BloomParams{
		BitmapBits: f.m,
		KNum:       f.k,
		SipKeys:    f.keys,
	}
}

// FromParams reconstructs a Filter from on-disk parameters and a
// previously-serialized raw bitmap.
func FromParams(params sstformat.BloomParams, raw []byte) (*Filter, error) {
	if params.BitmapBits == 0 || params.BitmapBits%8 != 0 {
		return nil, ierrs.InvalidData("bloom bitmap bit count is not a multiple of 8")
	}
	if params.KNum < 1 {
		return nil, ierrs.InvalidData("bloom filter has zero hash functions")
	}
	wantLen := int(params.BitmapBits / 8)
	if len(raw) != wantLen {
		return nil, ierrs.InvalidDataf("bloom bitmap length mismatch: want %d got %d", wantLen, len(raw))
	}
	bits := bytesToBitSet(raw)
	return &Filter{
		bits: bits,
		m:    params.BitmapBits,
		k:    params.KNum,
		keys: params.SipKeys,
	}, nil
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := f.hashPair(key)
	for i := uint32(0); i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % f.m
		f.bits.Set(uint(idx))
	}
}

// Check reports whether key is possibly present. A false result means key
// was definitely never Add-ed.
func (f *Filter) Check(key []byte) bool {
	h1, h2 := f.hashPair(key)
	for i := uint32(0); i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % f.m
		if !f.bits.Test(uint(idx)) {
			return false
		}
	}
	return true
}

func (f *Filter) hashPair(key []byte) (uint64, uint64) {
	h1 := sipHash13(f.keys[0][0], f.keys[0][1], key)
	h2 := sipHash13(f.keys[1][0], f.keys[1][1], key)
	// A zero second hash would collapse every probe onto the same bit;
	// fold in the first hash to guard against it.
	if h2 == 0 {
		h2 = h1 | 1
	}
	return h1, h2
}

// Bytes serializes the filter's bitmap as a raw byte array of exactly
// BitmapBits/8 bytes, matching the on-disk Bloom region format.
func (f *Filter) Bytes() []byte {
	return bitSetToBytes(f.bits, f.m)
}

func bitSetToBytes(b *bitset.BitSet, bits uint64) []byte {
	byteLen := int(bits / 8)
	words := b.Bytes()
	out := make([]byte, byteLen)
	for i := 0; i < byteLen; i++ {
		word := uint64(0)
		wi := i / 8
		if wi < len(words) {
			word = words[wi]
		}
		shift := uint((i % 8) * 8)
		out[i] = byte(word >> shift)
	}
	return out
}

func bytesToBitSet(raw []byte) *bitset.BitSet {
	numWords := (len(raw) + 7) / 8
	words := make([]uint64, numWords)
	for i, bv := range raw {
		wi := i / 8
		shift := uint((i % 8) * 8)
		words[wi] |= uint64(bv) << shift
	}
	return bitset.From(words)
}
