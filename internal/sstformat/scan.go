package sstformat

import (
	"bytes"

	"github.com/flashsst/sstable/internal/ierrs"
)

// ScanChunk linearly scans a decoded chunk's record bytes looking for key.
// Records are sorted within a chunk, so the scan stops as soon as a record
// key compares greater than the query. It returns the start/end byte
// offsets of the matching value within buf, or found=false if key is
// absent from this chunk.
func ScanChunk(buf []byte, key []byte) (start, end int, found bool, err error) {
	offset := 0
	for offset < len(buf) {
		hdr, decErr := DecodeKVLengthFromBuf(buf[offset:])
		if decErr != nil {
			return 0, 0, false, decErr
		}
		keyStart := offset + KVLengthEncodedSize
		keyEnd := keyStart + int(hdr.KeyLength)
		if keyEnd > len(buf) {
			return 0, 0, false, errTruncated()
		}
		recKey := buf[keyStart:keyEnd]

		valStart := keyEnd
		valEnd := valStart + int(hdr.ValueLength)
		if valEnd > len(buf) {
			return 0, 0, false, errTruncated()
		}

		switch bytes.Compare(recKey, key) {
		case 0:
			return valStart, valEnd, true, nil
		case 1:
			return 0, 0, false, nil
		default:
			offset = valEnd
		}
	}
	return 0, 0, false, nil
}

func errTruncated() error {
	return ierrs.InvalidData("record overruns chunk bounds")
}
