package sampleprof

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// WriteText renders the profile in the text format. Frames containing
// the frame separator or a newline have no text rendering and are
// rejected.
func WriteText(dst io.Writer, p *Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	for _, r := range p.Records {
		for _, f := range r.CallStack {
			if strings.ContainsAny(f, ";\n") {
				return fmt.Errorf("frame %q cannot be rendered in the text format", f)
			}
		}
	}
	w := bufio.NewWriter(dst)
	fmt.Fprintf(w, "total_samples=%d\n", p.TotalSamples)
	for _, r := range p.Records {
		fmt.Fprintf(w, "%s %d\n", strings.Join(r.CallStack, ";"), r.Weight)
	}
	return w.Flush()
}

// WriteBinary encodes the profile in the binary sampling container and
// reports the bytes written.
func WriteBinary(dst io.Writer, p *Profile) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	buf := make([]byte, 0, binaryHeaderSize+16*len(p.Records))
	buf = append(buf, format.MagicSampleBinary[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, format.SampleBinaryVersion)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, p.TotalSamples)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(p.Records)))
	for _, r := range p.Records {
		buf = binary.AppendUvarint(buf, uint64(len(r.CallStack)))
		for _, f := range r.CallStack {
			buf = binary.AppendUvarint(buf, uint64(len(f)))
			buf = append(buf, f...)
		}
		buf = binary.AppendUvarint(buf, r.Weight)
	}
	n, err := dst.Write(buf)
	return int64(n), err
}
