// Package profdata reads profiling data without prior knowledge of its
// encoding. The container is sniffed from the leading bytes and routed
// to the matching decoder, gzip-compressed input is decompressed
// transparently.
package profdata

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/profdata-go/profdata/pkg/profdata/format"
	"github.com/profdata-go/profdata/pkg/profdata/instrprof"
	"github.com/profdata-go/profdata/pkg/profdata/sampleprof"
)

// Profile is the result of Parse: the sniffed tag plus exactly one of
// the family payloads.
type Profile struct {
	Tag format.Tag

	Instrumented *instrprof.Profile
	Samples      *sampleprof.Profile
}

// Kind names the family of the decoded payload.
func (p *Profile) Kind() string {
	switch {
	case p.Instrumented != nil:
		return "instrumented"
	case p.Samples != nil:
		return "sampling"
	default:
		return "empty"
	}
}

// Warnings lists the non-fatal inconsistencies recorded while decoding.
func (p *Profile) Warnings() []format.IntegrityWarning {
	if p.Instrumented != nil {
		return p.Instrumented.Warnings
	}
	return nil
}

func (p *Profile) HasIntegrityWarnings() bool { return len(p.Warnings()) > 0 }

var (
	gzipReaderPool = sync.Pool{
		New: func() any {
			return &gzipReader{
				reader: bytes.NewReader(nil),
			}
		},
	}
	bufPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(nil)
		},
	}
)

type gzipReader struct {
	gzip   *gzip.Reader
	reader *bytes.Reader
}

func (r *gzipReader) openBytes(input []byte) (io.Reader, error) {
	r.reader.Reset(input)
	var err error
	if r.gzip == nil {
		r.gzip, err = gzip.NewReader(r.reader)
	} else {
		err = r.gzip.Reset(r.reader)
	}
	if err != nil {
		return nil, err
	}
	return r.gzip, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

// Parse decodes a profile of any supported encoding.
func Parse(input []byte) (*Profile, error) {
	if bytes.HasPrefix(input, gzipMagic) {
		buf := bufPool.Get().(*bytes.Buffer)
		defer func() {
			buf.Reset()
			bufPool.Put(buf)
		}()
		if err := gunzipTo(buf, input); err != nil {
			return nil, fmt.Errorf("decompress: %v: %w", err, format.ErrMalformed)
		}
		// Decoders copy what they keep, the pooled buffer is safe to
		// reuse once parse returns.
		input = buf.Bytes()
	}
	return parse(input)
}

func gunzipTo(dst *bytes.Buffer, input []byte) error {
	r := gzipReaderPool.Get().(*gzipReader)
	defer gzipReaderPool.Put(r)
	rd, err := r.openBytes(input)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, rd)
	return err
}

func parse(buf []byte) (*Profile, error) {
	tag := format.Sniff(buf)
	p := &Profile{Tag: tag}
	var err error
	switch tag.Variant {
	case format.VariantIndexed:
		p.Instrumented, err = instrprof.DecodeIndexed(buf)
	case format.VariantRaw, format.VariantRaw32:
		p.Instrumented, err = instrprof.DecodeRaw(buf)
	case format.VariantInstrText:
		p.Instrumented, err = instrprof.DecodeText(buf)
	case format.VariantSampleText:
		p.Samples, err = sampleprof.DecodeText(buf)
	case format.VariantSampleBinary:
		p.Samples, err = sampleprof.DecodeBinary(buf)
	default:
		return nil, fmt.Errorf("no known container magic: %w", format.ErrUnrecognized)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ParseFile reads and parses the profile at path.
func ParseFile(path string) (*Profile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read profile")
	}
	p, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return p, nil
}

// Detect sniffs the container tag without decoding records. For gzipped
// input the tag describes the inner payload.
func Detect(input []byte) (format.Tag, error) {
	if !bytes.HasPrefix(input, gzipMagic) {
		return format.Sniff(input), nil
	}
	r := gzipReaderPool.Get().(*gzipReader)
	defer gzipReaderPool.Put(r)
	rd, err := r.openBytes(input)
	if err != nil {
		return format.Tag{}, fmt.Errorf("decompress: %v: %w", err, format.ErrMalformed)
	}
	head := make([]byte, format.MaxHeaderPeek)
	n, err := io.ReadFull(rd, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return format.Tag{}, fmt.Errorf("decompress: %v: %w", err, format.ErrMalformed)
	}
	return format.Sniff(head[:n]), nil
}

// Merge folds profiles of one family together, instrumented counts are
// summed per function and sampling weights per stack. The first profile
// is the destination and is returned with its tag unchanged, the rest
// are left untouched.
func Merge(profiles ...*Profile) (*Profile, error) {
	if len(profiles) == 0 {
		return nil, errors.New("nothing to merge")
	}
	dst := profiles[0]
	for _, p := range profiles[1:] {
		switch {
		case dst.Instrumented != nil && p.Instrumented != nil:
			if err := dst.Instrumented.Merge(p.Instrumented); err != nil {
				return nil, err
			}
		case dst.Samples != nil && p.Samples != nil:
			dst.Samples.Merge(p.Samples)
		default:
			return nil, errors.Errorf("cannot merge %s and %s profiles", dst.Kind(), p.Kind())
		}
	}
	return dst, nil
}
