package sstable

import (
	"bytes"
	"hash/crc32"
	"io"
	"os"

	"github.com/flashsst/sstable/internal/bloomfilter"
	"github.com/flashsst/sstable/internal/compress"
	"github.com/flashsst/sstable/internal/posio"
	"github.com/flashsst/sstable/internal/sstformat"
)

// Writer builds a table on disk, one strictly-ascending key at a time.
// Keys must be added via Set in strictly ascending order; Finish flushes
// any pending chunk and writes the index and Bloom regions, then backpatches
// the metadata block written as a placeholder at open-time.
type Writer struct {
	f    *os.File
	opts WriteOptions

	pw  *posio.Writer
	mw  io.Writer // pw plus the running checksum, shared by every region after the preamble
	crc hash32

	comp compress.Compressor

	chunkBuf      bytes.Buffer
	chunkFirstKey []byte
	chunkStart    uint64

	lastKey  []byte
	haveLast bool

	index []indexEntry
	bloom *bloomfilter.Filter
	items uint64

	dataStart uint64
	metaStart uint64

	failed   bool
	finished bool
}

// hash32 is the subset of hash.Hash32 this file needs, named locally so
// this file doesn't have to import "hash" just to spell the field type.
type hash32 interface {
	io.Writer
	Sum32() uint32
}

type indexEntry struct {
	key    []byte
	offset uint64
}

// New opens path for writing with DefaultWriteOptions.
func New(path string) (*Writer, error) {
	return NewWithOptions(path, DefaultWriteOptions())
}

// NewWithOptions opens path for writing with opts.
func NewWithOptions(path string, opts WriteOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, wrapIO("sstable.NewWithOptions", err)
	}

	if _, err := f.Write(sstformat.Magic[:]); err != nil {
		f.Close()
		return nil, wrapIO("sstable.NewWithOptions", err)
	}
	if err := sstformat.SupportedVersion.Encode(f); err != nil {
		f.Close()
		return nil, wrapIO("sstable.NewWithOptions", err)
	}

	metaStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, wrapIO("sstable.NewWithOptions", err)
	}

	placeholder := make([]byte, sstformat.EncodedSize)
	if _, err := f.Write(placeholder); err != nil {
		f.Close()
		return nil, wrapIO("sstable.NewWithOptions", err)
	}

	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, wrapIO("sstable.NewWithOptions", err)
	}

	filter, err := bloomfilter.New(bloomfilter.Config{
		BitmapSize: opts.Bloom.BitmapSize,
		ItemsCount: opts.Bloom.ItemsCount,
	}, bloomfilter.RandomSeeder)
	if err != nil {
		f.Close()
		return nil, wrapInternal("sstable.NewWithOptions", err)
	}

	pw := posio.NewWriter(f, uint64(dataStart))
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(pw, crc)

	comp, err := compress.NewCompressor(compress.Algorithm(opts.Compression), mw)
	if err != nil {
		f.Close()
		return nil, wrapInternal("sstable.NewWithOptions", err)
	}

	return &Writer{
		f:          f,
		opts:       opts,
		pw:         pw,
		mw:         mw,
		crc:        crc,
		comp:       comp,
		bloom:      filter,
		dataStart:  uint64(dataStart),
		metaStart:  uint64(metaStart),
		chunkStart: uint64(dataStart),
	}, nil
}

// Set adds key/value to the table. key must compare strictly greater than
// every previously-set key.
func (w *Writer) Set(key, value []byte) error {
	if w.failed || w.finished {
		return newErr("sstable.Writer.Set", KindProgrammingError, errWriterClosed)
	}
	hdr, err := sstformat.NewKVLength(len(key), len(value))
	if err != nil {
		return wrapInternal("sstable.Writer.Set", err)
	}
	if w.haveLast && bytes.Compare(key, w.lastKey) <= 0 {
		w.failed = true
		return newErr("sstable.Writer.Set", KindProgrammingError, errOutOfOrder)
	}

	if w.chunkBuf.Len() == 0 {
		w.chunkFirstKey = append([]byte(nil), key...)
	}

	if err := hdr.Encode(&w.chunkBuf); err != nil {
		w.failed = true
		return wrapIO("sstable.Writer.Set", err)
	}
	w.chunkBuf.Write(key)
	w.chunkBuf.Write(value)

	w.bloom.Add(key)
	w.items++
	w.lastKey = append(w.lastKey[:0], key...)
	w.haveLast = true

	if w.chunkBuf.Len() >= w.opts.FlushEvery {
		if err := w.flushChunk(); err != nil {
			w.failed = true
			return err
		}
	}
	return nil
}

// flushChunk compresses and writes the pending chunk, recording its index
// entry. A no-op if no records are pending.
func (w *Writer) flushChunk() error {
	if w.chunkBuf.Len() == 0 {
		return nil
	}
	w.index = append(w.index, indexEntry{key: w.chunkFirstKey, offset: w.chunkStart})

	if _, err := w.comp.Write(w.chunkBuf.Bytes()); err != nil {
		return wrapIO("sstable.Writer.flushChunk", err)
	}
	if err := w.comp.Close(); err != nil {
		return wrapInternal("sstable.Writer.flushChunk", err)
	}

	w.chunkStart = w.pw.CurrentOffset()
	w.comp.Reset(w.mw)
	w.chunkBuf.Reset()
	w.chunkFirstKey = nil
	return nil
}

// Finish flushes any pending chunk, writes the index and Bloom regions, and
// backpatches the metadata block, then closes the file. Once Finish has
// returned, further Set, Finish or Close calls fail with
// KindProgrammingError.
func (w *Writer) Finish() error {
	if w.failed {
		return newErr("sstable.Writer.Finish", KindProgrammingError, errWriterFailed)
	}
	if w.finished {
		return newErr("sstable.Writer.Finish", KindProgrammingError, errWriterClosed)
	}

	if err := w.flushChunk(); err != nil {
		w.failed = true
		return err
	}
	dataLen := w.pw.CurrentOffset() - w.dataStart

	// The index and Bloom regions are each their own compression frame, using
	// the same algorithm as the data chunks, per the on-disk format. comp is
	// already Reset onto w.mw by the trailing flushChunk above.
	indexStart := w.pw.CurrentOffset()
	for _, e := range w.index {
		hdr, err := sstformat.NewKVOffset(len(e.key), e.offset)
		if err != nil {
			w.failed = true
			return wrapInternal("sstable.Writer.Finish", err)
		}
		if err := hdr.Encode(w.comp); err != nil {
			w.failed = true
			return wrapIO("sstable.Writer.Finish", err)
		}
		if _, err := w.comp.Write(e.key); err != nil {
			w.failed = true
			return wrapIO("sstable.Writer.Finish", err)
		}
	}
	if err := w.comp.Close(); err != nil {
		w.failed = true
		return wrapInternal("sstable.Writer.Finish", err)
	}
	indexLen := w.pw.CurrentOffset() - indexStart

	bloomStart := w.pw.CurrentOffset()
	w.comp.Reset(w.mw)
	bloomBytes := w.bloom.Bytes()
	if _, err := w.comp.Write(bloomBytes); err != nil {
		w.failed = true
		return wrapIO("sstable.Writer.Finish", err)
	}
	if err := w.comp.Close(); err != nil {
		w.failed = true
		return wrapInternal("sstable.Writer.Finish", err)
	}
	bloomLen := w.pw.CurrentOffset() - bloomStart

	meta := sstformat.Meta{
		DataLen:     dataLen,
		IndexLen:    indexLen,
		BloomLen:    bloomLen,
		Items:       w.items,
		Compression: uint32(w.opts.Compression),
		Finished:    true,
		Checksum:    w.crc.Sum32(),
		Bloom:       w.bloom.Params(),
	}

	endOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		w.failed = true
		return wrapIO("sstable.Writer.Finish", err)
	}
	if _, err := w.f.Seek(int64(w.metaStart), io.SeekStart); err != nil {
		w.failed = true
		return wrapIO("sstable.Writer.Finish", err)
	}
	if err := meta.Encode(w.f); err != nil {
		w.failed = true
		return wrapIO("sstable.Writer.Finish", err)
	}
	if _, err := w.f.Seek(endOffset, io.SeekStart); err != nil {
		w.failed = true
		return wrapIO("sstable.Writer.Finish", err)
	}

	w.finished = true
	return wrapIO("sstable.Writer.Finish", w.f.Close())
}

// Close is an alias for Finish.
func (w *Writer) Close() error {
	return w.Finish()
}
