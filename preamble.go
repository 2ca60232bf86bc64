package sstable

import (
	"bytes"
	"io"

	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/sstformat"
)

// preambleSize is the fixed on-disk size of magic + version, before the
// metadata block.
const preambleSize = 4 + 4

// readPreambleAndMeta reads and validates the magic, version, and metadata
// block at the start of r, returning the decoded Meta and the byte offset
// where the data region begins.
func readPreambleAndMeta(r io.Reader) (sstformat.Meta, uint64, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return sstformat.Meta{}, 0, wrapIO("sstable.readPreambleAndMeta", err)
	}
	if !bytes.Equal(magic[:], sstformat.Magic[:]) {
		return sstformat.Meta{}, 0, invalidData("sstable.readPreambleAndMeta", "bad magic")
	}

	version, err := sstformat.DecodeVersion(r)
	if err != nil {
		return sstformat.Meta{}, 0, wrapIO("sstable.readPreambleAndMeta", err)
	}
	if version != sstformat.SupportedVersion {
		return sstformat.Meta{}, 0, newErr("sstable.readPreambleAndMeta", KindUnsupportedVersion,
			unsupportedVersionErr(version))
	}

	meta, err := sstformat.DecodeMeta(r)
	if err != nil {
		return sstformat.Meta{}, 0, wrapIO("sstable.readPreambleAndMeta", err)
	}
	if !meta.Finished {
		return sstformat.Meta{}, 0, invalidData("sstable.readPreambleAndMeta", "table was never finished")
	}

	return meta, uint64(preambleSize + sstformat.EncodedSize), nil
}

// regionOffsets computes the absolute byte offsets of the data, index, and
// bloom regions from a decoded Meta and the offset the data region starts
// at.
type regionOffsets struct {
	dataStart  uint64
	indexStart uint64
	bloomStart uint64
	end        uint64
}

func computeRegionOffsets(meta sstformat.Meta, dataStart uint64) regionOffsets {
	indexStart := dataStart + meta.DataLen
	bloomStart := indexStart + meta.IndexLen
	end := bloomStart + meta.BloomLen
	return regionOffsets{dataStart: dataStart, indexStart: indexStart, bloomStart: bloomStart, end: end}
}

// readRegionAt reads length bytes at offset off from ra (bounds-checked by
// the underlying reader), used to pull the index and Bloom regions fully
// into memory since both are parsed eagerly at open time.
func readRegionAt(ra io.ReaderAt, off, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(ioSectionReader(ra, off, length), buf); err != nil {
		return nil, wrapIO("sstable.readRegionAt", err)
	}
	return buf, nil
}

func ioSectionReader(ra io.ReaderAt, off, length uint64) io.Reader {
	return io.NewSectionReader(ra, int64(off), int64(length))
}

// readAndDecompressRegion reads a region and, if uncompress is non-nil,
// decodes it as a single compression frame. The index and Bloom regions are
// each written as their own frame of the table's compression algorithm, the
// same as a data chunk.
func readAndDecompressRegion(ra io.ReaderAt, off, length uint64, uncompress compress.Uncompress) ([]byte, error) {
	raw, err := readRegionAt(ra, off, length)
	if err != nil {
		return nil, err
	}
	if uncompress == nil {
		return raw, nil
	}
	out, err := uncompress(raw)
	if err != nil {
		return nil, wrapInternal("sstable.readAndDecompressRegion", err)
	}
	return out, nil
}

func unsupportedVersionErr(v sstformat.Version) error {
	return &versionError{v}
}

type versionError struct {
	v sstformat.Version
}

func (e *versionError) Error() string {
	return "unsupported table version"
}
