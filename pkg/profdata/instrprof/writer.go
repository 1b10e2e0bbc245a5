package instrprof

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// compressNamesMin is the names-section size from which the indexed
// writer gzips the section.
const compressNamesMin = 512

type writerOffset struct {
	io.Writer
	offset int64
}

func withWriterOffset(w io.Writer) *writerOffset {
	return &writerOffset{Writer: w}
}

func (w *writerOffset) Write(p []byte) (n int, err error) {
	n, err = w.Writer.Write(p)
	w.offset += int64(n)
	return n, err
}

// WriteIndexed encodes the profile in the newest indexed container
// version and reports the bytes written.
func WriteIndexed(dst io.Writer, p *Profile) (int64, error) {
	recs := p.SortedRecords()
	names, nameOffs := encodeNames(p.Symtab)

	var (
		counters []byte
		data     []byte
		vprof    []byte
	)
	idx := uint32(0)
	for _, r := range recs {
		start := len(counters)
		for _, c := range r.Counters {
			counters = binary.LittleEndian.AppendUint64(counters, c)
		}
		crc := crc32.Checksum(counters[start:], castagnoli)

		vprofOff := uint32(vprofNone)
		if len(r.Values) > 0 {
			vprofOff = uint32(len(vprof))
			vprof = appendValueProf(vprof, r.Values)
		}

		var nameOff, nameLen uint32
		if r.Name != "" {
			off, ok := nameOffs[r.Name]
			if !ok {
				return 0, fmt.Errorf("record %s is missing from the symbol table", r.Name)
			}
			nameOff, nameLen = off, uint32(len(r.Name))
		}

		data = binary.LittleEndian.AppendUint64(data, r.NameHash)
		data = binary.LittleEndian.AppendUint64(data, r.FuncHash)
		data = binary.LittleEndian.AppendUint32(data, nameOff)
		data = binary.LittleEndian.AppendUint32(data, nameLen)
		data = binary.LittleEndian.AppendUint32(data, idx)
		data = binary.LittleEndian.AppendUint32(data, uint32(len(r.Counters)))
		data = binary.LittleEndian.AppendUint32(data, crc)
		data = binary.LittleEndian.AppendUint32(data, vprofOff)
		data = append(data, 0, 0, 0, 0, 0, 0, 0, 0)
		idx += uint32(len(r.Counters))
	}

	flags := p.Flags &^ FlagCompressedNames
	if len(names) >= compressNamesMin {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(names); err != nil {
			return 0, err
		}
		if err := zw.Close(); err != nil {
			return 0, err
		}
		names = zbuf.Bytes()
		flags |= FlagCompressedNames
	}

	const tocEntries = 4
	off := uint64(indexedHeaderSize + tocEntries*tocEntrySize)
	header := make([]byte, 0, indexedHeaderSize+tocEntries*tocEntrySize)
	header = append(header, format.MagicIndexed[:]...)
	header = binary.LittleEndian.AppendUint32(header, format.IndexedVersionMax)
	header = binary.LittleEndian.AppendUint32(header, flags)
	for _, sec := range [][]byte{names, counters, data, vprof} {
		header = binary.LittleEndian.AppendUint64(header, off)
		header = binary.LittleEndian.AppendUint64(header, uint64(len(sec)))
		off += uint64(len(sec))
	}

	w := withWriterOffset(dst)
	for _, sec := range [][]byte{header, names, counters, data, vprof} {
		if _, err := w.Write(sec); err != nil {
			return w.offset, err
		}
	}
	return w.offset, nil
}

func encodeNames(symtab *Symtab) ([]byte, map[string]uint32) {
	var buf []byte
	offs := make(map[string]uint32, symtab.Len())
	var tmp [binary.MaxVarintLen64]byte
	for _, name := range symtab.Names() {
		n := binary.PutUvarint(tmp[:], uint64(len(name)))
		buf = append(buf, tmp[:n]...)
		offs[name] = uint32(len(buf))
		buf = append(buf, name...)
	}
	return buf, offs
}

func sortedKinds(values ValueProfData) []ValueKind {
	kinds := make([]ValueKind, 0, len(values))
	for k := range values {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func appendValueProf(b []byte, values ValueProfData) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(values)))
	for _, k := range sortedKinds(values) {
		sites := values[k]
		b = binary.LittleEndian.AppendUint32(b, uint32(k))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(sites)))
		for _, s := range sites {
			b = binary.LittleEndian.AppendUint32(b, uint32(len(s.Entries)))
			for _, e := range s.Entries {
				b = binary.LittleEndian.AppendUint64(b, e.Value)
				b = binary.LittleEndian.AppendUint64(b, e.Count)
			}
		}
	}
	return b
}

// WriteText renders the profile in the text format. Context-sensitive
// profiles are always rendered as :csir, the text format has no
// directive for context sensitivity alone.
func WriteText(dst io.Writer, p *Profile) error {
	w := bufio.NewWriter(dst)
	if p.ContextSensitive() {
		fmt.Fprintln(w, ":csir")
	} else if p.IR() {
		fmt.Fprintln(w, ":ir")
	}
	if p.EntryFirst() {
		fmt.Fprintln(w, ":entry_first")
	}
	for i, r := range p.SortedRecords() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, r.DisplayName())
		fmt.Fprintln(w, r.FuncHash)
		fmt.Fprintln(w, len(r.Counters))
		for _, c := range r.Counters {
			fmt.Fprintln(w, c)
		}
		writeValueProfText(w, p, r)
	}
	return w.Flush()
}

func writeValueProfText(w io.Writer, p *Profile, r *Record) {
	if len(r.Values) == 0 {
		return
	}
	fmt.Fprintln(w, len(r.Values))
	for _, k := range sortedKinds(r.Values) {
		sites := r.Values[k]
		fmt.Fprintln(w, uint32(k))
		fmt.Fprintln(w, len(sites))
		for _, s := range sites {
			fmt.Fprintln(w, len(s.Entries))
			for _, e := range s.Entries {
				fmt.Fprintf(w, "%s:%d\n", targetString(p, k, e.Value), e.Count)
			}
		}
	}
}

func targetString(p *Profile, kind ValueKind, value uint64) string {
	if kind == ValueKindIndirectCall {
		if name, ok := p.Symtab.Name(value); ok {
			return name
		}
		return fmt.Sprintf("0x%x", value)
	}
	return strconv.FormatUint(value, 10)
}
