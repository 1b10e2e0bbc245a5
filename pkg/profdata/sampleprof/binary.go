package sampleprof

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/dennwc/varint"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// The binary container:
//
//	magic[8], version u32, reserved u32
//	totalSamples u64, entryCount u64
//	entries: frameCount uvarint, frames (length uvarint, utf8 bytes),
//	         weight uvarint
//
// Entries are not size-prefixed as a whole, so running off the buffer
// while reading one means the buffer is cut short.

const binaryHeaderSize = format.MagicSize + 24

// DecodeBinary parses a binary sampling profile.
func DecodeBinary(buf []byte) (*Profile, error) {
	if len(buf) < binaryHeaderSize {
		return nil, fmt.Errorf("sampling header: %w", format.ErrTruncated)
	}
	if !bytes.Equal(buf[:format.MagicSize], format.MagicSampleBinary[:]) {
		return nil, fmt.Errorf("sampling magic mismatch: %w", format.ErrUnrecognized)
	}
	version := binary.LittleEndian.Uint32(buf[format.MagicSize:])
	if !format.SupportedVersion(format.VariantSampleBinary, version) {
		return nil, fmt.Errorf("sampling version %d: %w", version, format.ErrUnsupportedVersion)
	}

	p := &Profile{
		TotalSamples: binary.LittleEndian.Uint64(buf[format.MagicSize+8:]),
	}
	count := binary.LittleEndian.Uint64(buf[format.MagicSize+16:])

	b := buf[binaryHeaderSize:]
	uv := func(what string, entry uint64) (uint64, error) {
		v, n := varint.Uvarint(b)
		if n == 0 {
			return 0, fmt.Errorf("entry %d: %s: %w", entry, what, format.ErrTruncated)
		}
		if n < 0 {
			return 0, fmt.Errorf("entry %d: %s overflows: %w", entry, what, format.ErrMalformed)
		}
		b = b[n:]
		return v, nil
	}

	if count > 0 {
		p.Records = make([]Record, 0, min(count, 4096))
	}
	for i := uint64(0); i < count; i++ {
		frameCount, err := uv("frame count", i)
		if err != nil {
			return nil, err
		}
		if frameCount == 0 {
			return nil, fmt.Errorf("entry %d: empty call stack: %w", i, format.ErrMalformed)
		}
		stack := make([]string, 0, min(frameCount, 1024))
		for f := uint64(0); f < frameCount; f++ {
			l, err := uv("frame length", i)
			if err != nil {
				return nil, err
			}
			if l == 0 {
				return nil, fmt.Errorf("entry %d: empty frame: %w", i, format.ErrMalformed)
			}
			if l > uint64(len(b)) {
				return nil, fmt.Errorf("entry %d: frame of %d bytes: %w", i, l, format.ErrTruncated)
			}
			if !utf8.Valid(b[:l]) {
				return nil, fmt.Errorf("entry %d: frame is not valid UTF-8: %w", i, format.ErrMalformed)
			}
			stack = append(stack, string(b[:l]))
			b = b[l:]
		}
		weight, err := uv("weight", i)
		if err != nil {
			return nil, err
		}
		p.Records = append(p.Records, Record{CallStack: stack, Weight: weight})
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after the last entry: %w", len(b), format.ErrMalformed)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}
