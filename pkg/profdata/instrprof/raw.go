package instrprof

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dennwc/varint"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// The raw container is written in one pass by an instrumented process:
//
//	[header] magic, version, flags, section sizes, relocation bases
//	[data]   fixed-size function records
//	[counters] 64-bit counter slots
//	[binary ids] length-prefixed build IDs (v2)
//	[names]  length-prefixed function names
//
// Records reference their counters by the memory address the counters
// had in the writing process; countersDelta rebases those addresses
// onto the counters section. The 32-bit flavor narrows the address
// field, counter slots stay 64-bit. Names are referenced by hash, so
// namesDelta is recorded but never needed here.

const (
	rawFixedHeaderSize = format.MagicSize + 8 // through the flags field
	rawHeaderSizeV1    = rawFixedHeaderSize + 40
	rawHeaderSizeV2    = rawHeaderSizeV1 + 8

	rawRecordSize64 = 32
	rawRecordSize32 = 24
)

// paddingBytes returns the padding that follows a section of the given
// size to keep the next one 8-byte aligned.
func paddingBytes(size uint64) uint64 {
	return 7 & (8 - size%8)
}

// DecodeRaw parses a raw instrumented profile in either pointer width.
func DecodeRaw(buf []byte) (*Profile, error) {
	if len(buf) < rawFixedHeaderSize {
		return nil, fmt.Errorf("raw header: %w", format.ErrTruncated)
	}
	var wide bool
	switch {
	case bytes.Equal(buf[:format.MagicSize], format.MagicRaw[:]):
		wide = true
	case bytes.Equal(buf[:format.MagicSize], format.MagicRaw32[:]):
		wide = false
	default:
		return nil, fmt.Errorf("raw magic mismatch: %w", format.ErrUnrecognized)
	}
	version := binary.LittleEndian.Uint32(buf[format.MagicSize:])
	if !format.SupportedVersion(format.VariantRaw, version) {
		return nil, fmt.Errorf("raw version %d: %w", version, format.ErrUnsupportedVersion)
	}
	flags := binary.LittleEndian.Uint32(buf[format.MagicSize+4:])

	headerSize := uint64(rawHeaderSizeV1)
	if version >= 2 {
		headerSize = rawHeaderSizeV2
	}
	if uint64(len(buf)) < headerSize {
		return nil, fmt.Errorf("raw header: %w", format.ErrTruncated)
	}
	h := buf[rawFixedHeaderSize:]
	dataCount := binary.LittleEndian.Uint64(h)
	countersCount := binary.LittleEndian.Uint64(h[8:])
	namesSize := binary.LittleEndian.Uint64(h[16:])
	countersDelta := binary.LittleEndian.Uint64(h[24:])
	_ = binary.LittleEndian.Uint64(h[32:]) // namesDelta
	var binaryIDsSize uint64
	if version >= 2 {
		binaryIDsSize = binary.LittleEndian.Uint64(h[40:])
	}

	recSize := uint64(rawRecordSize64)
	if !wide {
		recSize = rawRecordSize32
	}

	// Sections follow the header back to back. Each bound is checked
	// before the section is touched.
	cursor := headerSize
	data, err := rawSection(buf, &cursor, dataCount, recSize, "data")
	if err != nil {
		return nil, err
	}
	counters, err := rawSection(buf, &cursor, countersCount, 8, "counters")
	if err != nil {
		return nil, err
	}
	var binaryIDs []byte
	if version >= 2 {
		if binaryIDs, err = rawSection(buf, &cursor, binaryIDsSize, 1, "binary ids"); err != nil {
			return nil, err
		}
		cursor += paddingBytes(binaryIDsSize)
		if cursor > uint64(len(buf)) {
			return nil, fmt.Errorf("binary ids padding: %w", format.ErrTruncated)
		}
	}
	names, err := rawSection(buf, &cursor, namesSize, 1, "names")
	if err != nil {
		return nil, err
	}

	p := NewProfile()
	p.Version = version
	p.Flags = flags &^ FlagCompressedNames
	if err = readNames(names, p.Symtab); err != nil {
		return nil, err
	}
	if p.BinaryIDs, err = readBinaryIDs(binaryIDs); err != nil {
		return nil, err
	}

	for i := uint64(0); i < dataCount; i++ {
		rec := data[i*recSize:]
		nameHash := binary.LittleEndian.Uint64(rec)
		funcHash := binary.LittleEndian.Uint64(rec[8:])
		var counterPtr uint64
		var numCounters uint32
		if wide {
			counterPtr = binary.LittleEndian.Uint64(rec[16:])
			numCounters = binary.LittleEndian.Uint32(rec[24:])
		} else {
			counterPtr = uint64(binary.LittleEndian.Uint32(rec[16:]))
			numCounters = binary.LittleEndian.Uint32(rec[20:])
		}

		if counterPtr < countersDelta {
			return nil, fmt.Errorf("record %d: counter pointer %#x before the section base %#x: %w",
				i, counterPtr, countersDelta, format.ErrMalformed)
		}
		rel := counterPtr - countersDelta
		if rel%8 != 0 {
			return nil, fmt.Errorf("record %d: misaligned counter pointer %#x: %w", i, counterPtr, format.ErrMalformed)
		}
		idx := rel / 8
		if idx > countersCount || uint64(numCounters) > countersCount-idx {
			return nil, fmt.Errorf("record %d: counters [%d, %d) outside the declared %d slots: %w",
				i, idx, idx+uint64(numCounters), countersCount, format.ErrMalformed)
		}

		name, _ := p.Symtab.Name(nameHash)
		r := &Record{
			Name:     name,
			NameHash: nameHash,
			FuncHash: funcHash,
			Counters: decodeCounters(counters[idx*8:(idx+uint64(numCounters))*8], 8),
		}
		if err = p.Add(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// rawSection carves count*width bytes at *cursor out of buf and
// advances the cursor.
func rawSection(buf []byte, cursor *uint64, count, width uint64, name string) ([]byte, error) {
	if count > 0 && width > 0 && count > uint64(len(buf))/width {
		return nil, fmt.Errorf("%s section of %d entries: %w", name, count, format.ErrTruncated)
	}
	size := count * width
	if *cursor > uint64(len(buf)) || size > uint64(len(buf))-*cursor {
		return nil, fmt.Errorf("%s section [%d, %d): %w", name, *cursor, *cursor+size, format.ErrTruncated)
	}
	sec := buf[*cursor : *cursor+size]
	*cursor += size
	return sec, nil
}

func readBinaryIDs(sec []byte) ([][]byte, error) {
	var ids [][]byte
	for off := 0; off < len(sec); {
		l, n := varint.Uvarint(sec[off:])
		if n <= 0 || l == 0 {
			return nil, fmt.Errorf("binary id length at offset %d: %w", off, format.ErrMalformed)
		}
		off += n
		if l > uint64(len(sec)-off) {
			return nil, fmt.Errorf("binary id of %d bytes at offset %d: %w", l, off, format.ErrMalformed)
		}
		ids = append(ids, append([]byte(nil), sec[off:off+int(l)]...))
		off += int(l)
	}
	return ids, nil
}
