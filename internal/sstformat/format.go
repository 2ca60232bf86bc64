// Package sstformat defines the fixed, little-endian on-disk record layout
// shared by every writer and reader variant: the magic/version preamble,
// the backpatchable metadata block, and the per-record and per-index-entry
// headers.
package sstformat

import (
	"encoding/binary"
	"io"

	"github.com/flashsst/sstable/internal/ierrs"
)

// Magic is the fixed 4-byte prefix every table file must start with.
var Magic = [4]byte{0x80, 'L', 'S', 'M'}

// KeyMax is the largest key length this format can represent.
const KeyMax = 1<<16 - 1

// ValueMax is the largest value length this format can represent.
const ValueMax = 1<<32 - 1

// Compression tags, as stored in Meta.Compression.
const (
	CompressionNone uint32 = iota
	CompressionZlib
	CompressionSnappy
)

// Version is the on-disk version tag. This package implements 2.0 only.
type Version struct {
	Major uint16
	Minor uint16
}

// SupportedVersion is the only version this library writes or accepts.
var SupportedVersion = Version{Major: 2, Minor: 0}

func (v Version) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, v.Major); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v.Minor)
}

func DecodeVersion(r io.Reader) (Version, error) {
	var v Version
	if err := binary.Read(r, binary.LittleEndian, &v.Major); err != nil {
		return v, err
	}
	if err := binary.Read(r, binary.LittleEndian, &v.Minor); err != nil {
		return v, err
	}
	return v, nil
}

// BloomParams is the Bloom filter sizing and hashing configuration, stored
// inside Meta so a reader can reconstruct the filter from metadata alone.
type BloomParams struct {
	BitmapBits uint64
	KNum       uint32
	// SipKeys holds the two 128-bit SipHash keys used for double hashing,
	// each represented as a (k0, k1) pair of u64 halves.
	SipKeys [2][2]uint64
}

const bloomParamsEncodedSize = 8 + 4 + 2*2*8

func (b BloomParams) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, b.BitmapBits); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.KNum); err != nil {
		return err
	}
	for _, key := range b.SipKeys {
		if err := binary.Write(w, binary.LittleEndian, key[0]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, key[1]); err != nil {
			return err
		}
	}
	return nil
}

func DecodeBloomParams(r io.Reader) (BloomParams, error) {
	var b BloomParams
	if err := binary.Read(r, binary.LittleEndian, &b.BitmapBits); err != nil {
		return b, err
	}
	if err := binary.Read(r, binary.LittleEndian, &b.KNum); err != nil {
		return b, err
	}
	for i := range b.SipKeys {
		if err := binary.Read(r, binary.LittleEndian, &b.SipKeys[i][0]); err != nil {
			return b, err
		}
		if err := binary.Read(r, binary.LittleEndian, &b.SipKeys[i][1]); err != nil {
			return b, err
		}
	}
	return b, nil
}

// Meta is the fixed-size metadata block written once as a placeholder at
// open-time and backpatched at Finish with the real region lengths.
type Meta struct {
	DataLen     uint64
	IndexLen    uint64
	BloomLen    uint64
	Items       uint64
	Compression uint32
	Finished    bool
	Checksum    uint32
	Bloom       BloomParams
}

// EncodedSize is the fixed on-disk size of Meta, constant across the
// lifetime of version 2.0. Backpatching relies on this never changing size.
const EncodedSize = 8 + 8 + 8 + 8 + 4 + 1 + 4 + bloomParamsEncodedSize

func (m Meta) Encode(w io.Writer) error {
	for _, v := range []uint64{m.DataLen, m.IndexLen, m.BloomLen, m.Items} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, m.Compression); err != nil {
		return err
	}
	finished := uint8(0)
	if m.Finished {
		finished = 1
	}
	if err := binary.Write(w, binary.LittleEndian, finished); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Checksum); err != nil {
		return err
	}
	return m.Bloom.Encode(w)
}

func DecodeMeta(r io.Reader) (Meta, error) {
	var m Meta
	vals := make([]uint64, 4)
	for i := range vals {
		if err := binary.Read(r, binary.LittleEndian, &vals[i]); err != nil {
			return m, err
		}
	}
	m.DataLen, m.IndexLen, m.BloomLen, m.Items = vals[0], vals[1], vals[2], vals[3]
	if err := binary.Read(r, binary.LittleEndian, &m.Compression); err != nil {
		return m, err
	}
	var finished uint8
	if err := binary.Read(r, binary.LittleEndian, &finished); err != nil {
		return m, err
	}
	m.Finished = finished != 0
	if err := binary.Read(r, binary.LittleEndian, &m.Checksum); err != nil {
		return m, err
	}
	bloom, err := DecodeBloomParams(r)
	if err != nil {
		return m, err
	}
	m.Bloom = bloom
	return m, nil
}

// KVLength is the per-record header inside a data chunk.
type KVLength struct {
	KeyLength   uint16
	ValueLength uint32
}

// KVLengthEncodedSize is the fixed on-disk size of KVLength.
const KVLengthEncodedSize = 2 + 4

// NewKVLength validates the key/value lengths against the format's bounds.
func NewKVLength(keyLen, valueLen int) (KVLength, error) {
	if keyLen > KeyMax {
		return KVLength{}, ierrs.New(ierrs.KindKeyTooLong, "key too long")
	}
	if valueLen > ValueMax {
		return KVLength{}, ierrs.New(ierrs.KindValueTooLong, "value too long")
	}
	return KVLength{KeyLength: uint16(keyLen), ValueLength: uint32(valueLen)}, nil
}

func (h KVLength) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, h.KeyLength); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.ValueLength)
}

func DecodeKVLength(r io.Reader) (KVLength, error) {
	var h KVLength
	if err := binary.Read(r, binary.LittleEndian, &h.KeyLength); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.ValueLength); err != nil {
		return h, err
	}
	return h, nil
}

// DecodeKVLengthFromBuf decodes a KVLength from the front of buf without an
// io.Reader, returning an error instead of panicking if buf is too short.
func DecodeKVLengthFromBuf(buf []byte) (KVLength, error) {
	if len(buf) < KVLengthEncodedSize {
		return KVLength{}, ierrs.InvalidData("truncated record header")
	}
	return KVLength{
		KeyLength:   binary.LittleEndian.Uint16(buf[0:2]),
		ValueLength: binary.LittleEndian.Uint32(buf[2:6]),
	}, nil
}

// KVOffset is a sparse-index entry: the first key of a chunk and that
// chunk's byte offset.
type KVOffset struct {
	KeyLength uint16
	Offset    uint64
}

// KVOffsetEncodedSize is the fixed on-disk size of KVOffset, excluding the
// variable-length key bytes that follow it.
const KVOffsetEncodedSize = 2 + 8

func NewKVOffset(keyLen int, offset uint64) (KVOffset, error) {
	if keyLen > KeyMax {
		return KVOffset{}, ierrs.New(ierrs.KindKeyTooLong, "key too long")
	}
	return KVOffset{KeyLength: uint16(keyLen), Offset: offset}, nil
}

func (h KVOffset) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, h.KeyLength); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.Offset)
}

func DecodeKVOffsetFromBuf(buf []byte) (KVOffset, error) {
	if len(buf) < KVOffsetEncodedSize {
		return KVOffset{}, ierrs.InvalidData("truncated index entry header")
	}
	return KVOffset{
		KeyLength: binary.LittleEndian.Uint16(buf[0:2]),
		Offset:    binary.LittleEndian.Uint64(buf[2:10]),
	}, nil
}
