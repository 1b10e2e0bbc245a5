package instrprof

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// The indexed container:
//
//	[header] magic, version, flags
//	[toc]    one entry per section
//	[names]  length-prefixed function names, gzipped when flagged (v3)
//	[counters] counter slots, 32-bit in v1, 64-bit from v2
//	[data]   fixed-size function records
//	[vprof]  value-profile blobs (v3)
//
// Every record carries a checksum of its counter slots: CRC-32/IEEE in
// v1, CRC-32/Castagnoli from v2. A mismatch downgrades to an integrity
// warning, the record itself is kept.

const (
	indexedHeaderSize = format.MagicSize + 8
	tocEntrySize      = 16

	recordSizeV1 = 36
	recordSizeV2 = 40
	recordSizeV3 = 48

	// vprofNone marks a record without value-profile data.
	vprofNone = 0xffffffff
)

// TOC section order. The value-profile entry exists from v3.
const (
	tocNames = iota
	tocCounters
	tocData
	tocValueProf
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type tocEntry struct {
	Offset uint64
	Size   uint64
}

func (e tocEntry) section(buf []byte, name string) ([]byte, error) {
	if e.Offset > uint64(len(buf)) || e.Size > uint64(len(buf))-e.Offset {
		return nil, fmt.Errorf("%s section [%d, %d): %w", name, e.Offset, e.Offset+e.Size, format.ErrTruncated)
	}
	return buf[e.Offset : e.Offset+e.Size], nil
}

func readTOC(buf []byte, off, entries int) ([]tocEntry, error) {
	end := off + entries*tocEntrySize
	if end > len(buf) {
		return nil, fmt.Errorf("table of contents: %w", format.ErrTruncated)
	}
	toc := make([]tocEntry, entries)
	for i := range toc {
		p := buf[off+i*tocEntrySize:]
		toc[i] = tocEntry{
			Offset: binary.LittleEndian.Uint64(p),
			Size:   binary.LittleEndian.Uint64(p[8:]),
		}
	}
	return toc, nil
}

func recordSize(version uint32) int {
	switch version {
	case 1:
		return recordSizeV1
	case 2:
		return recordSizeV2
	default:
		return recordSizeV3
	}
}

func counterSlotSize(version uint32) int {
	if version == 1 {
		return 4
	}
	return 8
}

func counterChecksum(version uint32, counters []byte) uint32 {
	if version == 1 {
		return crc32.ChecksumIEEE(counters)
	}
	return crc32.Checksum(counters, castagnoli)
}

// DecodeIndexed parses an indexed instrumented profile.
func DecodeIndexed(buf []byte) (*Profile, error) {
	if len(buf) < indexedHeaderSize {
		return nil, fmt.Errorf("indexed header: %w", format.ErrTruncated)
	}
	if !bytes.Equal(buf[:format.MagicSize], format.MagicIndexed[:]) {
		return nil, fmt.Errorf("indexed magic mismatch: %w", format.ErrUnrecognized)
	}
	version := binary.LittleEndian.Uint32(buf[format.MagicSize:])
	if !format.SupportedVersion(format.VariantIndexed, version) {
		return nil, fmt.Errorf("indexed version %d: %w", version, format.ErrUnsupportedVersion)
	}
	flags := binary.LittleEndian.Uint32(buf[format.MagicSize+4:])

	entries := 3
	if version >= 3 {
		entries = 4
	}
	toc, err := readTOC(buf, indexedHeaderSize, entries)
	if err != nil {
		return nil, err
	}
	names, err := toc[tocNames].section(buf, "names")
	if err != nil {
		return nil, err
	}
	counters, err := toc[tocCounters].section(buf, "counters")
	if err != nil {
		return nil, err
	}
	data, err := toc[tocData].section(buf, "data")
	if err != nil {
		return nil, err
	}
	var vprof []byte
	if version >= 3 {
		if vprof, err = toc[tocValueProf].section(buf, "value-profile"); err != nil {
			return nil, err
		}
	}

	if flags&FlagCompressedNames != 0 {
		if version < 3 {
			return nil, fmt.Errorf("compressed names flag on version %d: %w", version, format.ErrMalformed)
		}
		if names, err = gunzipNames(names); err != nil {
			return nil, err
		}
	}

	p := NewProfile()
	p.Version = version
	p.Flags = flags &^ FlagCompressedNames
	if err = readNames(names, p.Symtab); err != nil {
		return nil, err
	}

	recSize := recordSize(version)
	if len(data)%recSize != 0 {
		return nil, fmt.Errorf("data section size %d is not a multiple of the %d-byte record: %w",
			len(data), recSize, format.ErrMalformed)
	}
	slot := counterSlotSize(version)
	for off := 0; off < len(data); off += recSize {
		rec := data[off : off+recSize]
		nameHash := binary.LittleEndian.Uint64(rec)
		funcHash := binary.LittleEndian.Uint64(rec[8:])
		nameOff := binary.LittleEndian.Uint32(rec[16:])
		nameLen := binary.LittleEndian.Uint32(rec[20:])
		counterIdx := binary.LittleEndian.Uint32(rec[24:])
		numCounters := binary.LittleEndian.Uint32(rec[28:])
		crc := binary.LittleEndian.Uint32(rec[32:])

		if uint64(nameOff) > uint64(len(names)) || uint64(nameLen) > uint64(len(names))-uint64(nameOff) {
			return nil, fmt.Errorf("record %d: name range outside the names section: %w",
				off/recSize, format.ErrMalformed)
		}
		name := string(names[nameOff : nameOff+nameLen])
		if name == "" {
			name, _ = p.Symtab.Name(nameHash)
		}

		start := uint64(counterIdx) * uint64(slot)
		length := uint64(numCounters) * uint64(slot)
		if start > uint64(len(counters)) || length > uint64(len(counters))-start {
			return nil, fmt.Errorf("record %d: counter range outside the counters section: %w",
				off/recSize, format.ErrMalformed)
		}
		rawCounters := counters[start : start+length]

		r := &Record{
			Name:     name,
			NameHash: nameHash,
			FuncHash: funcHash,
			Counters: decodeCounters(rawCounters, slot),
		}
		if name != "" && HashName(name) != nameHash {
			p.warn(name, fmt.Sprintf("name hash mismatch: recorded %#x, computed %#x", nameHash, HashName(name)))
		}
		if sum := counterChecksum(version, rawCounters); sum != crc {
			p.warn(r.DisplayName(), fmt.Sprintf("counter checksum mismatch: computed %#x, recorded %#x", sum, crc))
		}
		if version >= 3 {
			if vprofOff := binary.LittleEndian.Uint32(rec[36:]); vprofOff != vprofNone {
				if r.Values, err = readValueProf(vprof, vprofOff); err != nil {
					return nil, fmt.Errorf("record %s: %w", r.DisplayName(), err)
				}
			}
		}
		if err = p.Add(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func decodeCounters(raw []byte, slot int) []uint64 {
	if len(raw) == 0 {
		return nil
	}
	cs := make([]uint64, len(raw)/slot)
	for i := range cs {
		if slot == 4 {
			cs[i] = uint64(binary.LittleEndian.Uint32(raw[i*4:]))
		} else {
			cs[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
	}
	return cs
}

func gunzipNames(sec []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(sec))
	if err != nil {
		return nil, fmt.Errorf("names section gzip: %v: %w", err, format.ErrMalformed)
	}
	defer zr.Close()
	names, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("names section gzip: %v: %w", err, format.ErrMalformed)
	}
	return names, nil
}

// readValueProf parses one value-profile blob. The section is known to
// be complete, so a blob running past its end means a bad offset or
// length, not a short buffer.
func readValueProf(sec []byte, off uint32) (ValueProfData, error) {
	if uint64(off) > uint64(len(sec)) {
		return nil, fmt.Errorf("value-profile offset %d outside section: %w", off, format.ErrMalformed)
	}
	b := sec[off:]
	u32 := func() (uint32, error) {
		if len(b) < 4 {
			return 0, fmt.Errorf("value-profile data cut short: %w", format.ErrMalformed)
		}
		v := binary.LittleEndian.Uint32(b)
		b = b[4:]
		return v, nil
	}
	u64 := func() (uint64, error) {
		if len(b) < 8 {
			return 0, fmt.Errorf("value-profile data cut short: %w", format.ErrMalformed)
		}
		v := binary.LittleEndian.Uint64(b)
		b = b[8:]
		return v, nil
	}

	numKinds, err := u32()
	if err != nil {
		return nil, err
	}
	if numKinds == 0 || numKinds > 2 {
		return nil, fmt.Errorf("value-profile kind count %d: %w", numKinds, format.ErrMalformed)
	}
	vpd := make(ValueProfData, numKinds)
	for k := uint32(0); k < numKinds; k++ {
		rawKind, err := u32()
		if err != nil {
			return nil, err
		}
		kind := ValueKind(rawKind)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown value-profile kind %d: %w", rawKind, format.ErrMalformed)
		}
		if _, ok := vpd[kind]; ok {
			return nil, fmt.Errorf("duplicate value-profile kind %s: %w", kind, format.ErrMalformed)
		}
		numSites, err := u32()
		if err != nil {
			return nil, err
		}
		if uint64(numSites) > uint64(len(b))/4 {
			return nil, fmt.Errorf("value-profile site count %d exceeds the section: %w", numSites, format.ErrMalformed)
		}
		sites := make([]ValueSite, numSites)
		for s := range sites {
			numEntries, err := u32()
			if err != nil {
				return nil, err
			}
			if uint64(numEntries) > uint64(len(b))/16 {
				return nil, fmt.Errorf("value-profile entry count %d exceeds the section: %w", numEntries, format.ErrMalformed)
			}
			if numEntries == 0 {
				continue
			}
			entries := make([]ValueEntry, numEntries)
			for e := range entries {
				if entries[e].Value, err = u64(); err != nil {
					return nil, err
				}
				if entries[e].Count, err = u64(); err != nil {
					return nil, err
				}
			}
			sites[s] = ValueSite{Entries: entries}
		}
		vpd[kind] = sites
	}
	return vpd, nil
}
