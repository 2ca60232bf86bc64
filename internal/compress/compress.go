// Package compress provides the chunked-compression adapters shared by the
// writer and every reader variant. Each chunk of a table is its own
// self-delimiting compression frame: closing a Compressor must produce
// bytes that an Uncompress call can decode independently of any other
// frame, and a Compressor must support being Reset onto a new underlying
// writer so a single file descriptor can host many independent frames back
// to back.
package compress

import (
	"bytes"
	"io"

	"github.com/flashsst/sstable/internal/ierrs"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"

	"github.com/flashsst/sstable/internal/sstformat"
)

// Compressor is an output sink that buffers/encodes writes and, on Close,
// flushes a complete, independently-decodable frame to the wrapped writer.
type Compressor interface {
	io.WriteCloser
	// Reset discards any unflushed internal state and starts a fresh frame
	// writing to w.
	Reset(w io.Writer)
}

// Uncompress decodes one complete frame produced by the matching
// Compressor.
type Uncompress func(buf []byte) ([]byte, error)

// Algorithm identifies a registered compression codec by its on-disk tag.
type Algorithm uint32

const (
	None   Algorithm = Algorithm(sstformat.CompressionNone)
	Zlib   Algorithm = Algorithm(sstformat.CompressionZlib)
	Snappy Algorithm = Algorithm(sstformat.CompressionSnappy)
)

// NewCompressor returns a fresh Compressor for the given algorithm, writing
// to w.
func NewCompressor(algo Algorithm, w io.Writer) (Compressor, error) {
	switch algo {
	case None:
		return &identityCompressor{w: w}, nil
	case Zlib:
		return &zlibCompressor{w: zlib.NewWriter(w)}, nil
	case Snappy:
		return &snappyCompressor{w: snappy.NewBufferedWriter(w)}, nil
	default:
		return nil, ierrs.InvalidDataf("unknown compression algorithm tag %d", algo)
	}
}

// NewUncompress returns the Uncompress function matching algo.
func NewUncompress(algo Algorithm) (Uncompress, error) {
	switch algo {
	case None:
		return uncompressNone, nil
	case Zlib:
		return uncompressZlib, nil
	case Snappy:
		return uncompressSnappy, nil
	default:
		return nil, ierrs.InvalidDataf("unknown compression algorithm tag %d", algo)
	}
}

// identityCompressor implements Compressor with zero overhead: "closing a
// frame" and "resetting" are both no-ops.
type identityCompressor struct {
	w io.Writer
}

func (c *identityCompressor) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *identityCompressor) Close() error                { return nil }
func (c *identityCompressor) Reset(w io.Writer)           { c.w = w }

func uncompressNone(buf []byte) ([]byte, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

type zlibCompressor struct {
	w *zlib.Writer
}

func (c *zlibCompressor) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *zlibCompressor) Close() error {
	if err := c.w.Close(); err != nil {
		return ierrs.Compression("zlib close", err)
	}
	return nil
}

func (c *zlibCompressor) Reset(w io.Writer) { c.w.Reset(w) }

func uncompressZlib(buf []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, ierrs.Compression("zlib new reader", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ierrs.Compression("zlib read", err)
	}
	return out, nil
}

type snappyCompressor struct {
	w *snappy.Writer
}

func (c *snappyCompressor) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *snappyCompressor) Close() error {
	if err := c.w.Close(); err != nil {
		return ierrs.Compression("snappy close", err)
	}
	return nil
}

func (c *snappyCompressor) Reset(w io.Writer) { c.w.Reset(w) }

func uncompressSnappy(buf []byte) ([]byte, error) {
	r := snappy.NewReader(bytes.NewReader(buf))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ierrs.Compression("snappy read", err)
	}
	return out, nil
}
