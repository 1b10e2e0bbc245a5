// Package format describes the on-disk profile containers understood by
// this module: magic numbers, versions, and the error taxonomy shared by
// the decoders.
package format

import (
	"errors"
	"fmt"
)

// Family classifies a buffer by the kind of profile it holds.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyInstrumentedBinary
	FamilyInstrumentedText
	FamilySampling
)

func (f Family) String() string {
	switch f {
	case FamilyInstrumentedBinary:
		return "instrumented-binary"
	case FamilyInstrumentedText:
		return "instrumented-text"
	case FamilySampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// Variant identifies the physical container within a family.
type Variant uint8

const (
	VariantNone Variant = iota
	VariantIndexed
	VariantRaw
	VariantRaw32
	VariantInstrText
	VariantSampleText
	VariantSampleBinary
)

func (v Variant) String() string {
	switch v {
	case VariantIndexed:
		return "indexed"
	case VariantRaw:
		return "raw"
	case VariantRaw32:
		return "raw32"
	case VariantInstrText:
		return "text"
	case VariantSampleText:
		return "text"
	case VariantSampleBinary:
		return "binary"
	default:
		return "none"
	}
}

// Tag is the outcome of sniffing a buffer: the detected family and
// container variant, and the version stamped in the header. Version is
// zero when the buffer ends before the header's version field.
type Tag struct {
	Family  Family
	Variant Variant
	Version uint32
}

// Known reports whether the buffer matched any container.
func (t Tag) Known() bool { return t.Family != FamilyUnknown }

func (t Tag) String() string {
	if !t.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%s/%s v%d", t.Family, t.Variant, t.Version)
}

// MagicSize is the length of every binary container magic.
const MagicSize = 8

// Every magic opens with 0xff so no binary container can pass the
// printable-text sniff.
var (
	MagicIndexed      = [MagicSize]byte{0xff, 'l', 'p', 'r', 'o', 'f', 'i', 0x81}
	MagicRaw          = [MagicSize]byte{0xff, 'l', 'p', 'r', 'o', 'f', 'r', 0x81}
	MagicRaw32        = [MagicSize]byte{0xff, 'l', 'p', 'r', 'o', 'f', 'R', 0x81}
	MagicSampleBinary = [MagicSize]byte{0xff, 's', 'p', 'r', 'o', 'f', '4', '2'}
)

// Container versions understood by the decoders. Writers always emit the
// newest version of their container.
const (
	IndexedVersionMin = 1
	IndexedVersionMax = 3

	RawVersionMin = 1
	RawVersionMax = 2

	// Version 0 of the binary sampling container predates the weight
	// encoding and was retired; decoders reject it as unsupported.
	SampleBinaryVersion = 1

	TextVersion = 1
)

type versionRange struct {
	min, max uint32
}

// supportedVersions is the per-variant support table. Extending a range
// here is the first step of landing a new container revision.
var supportedVersions = map[Variant]versionRange{
	VariantIndexed:      {IndexedVersionMin, IndexedVersionMax},
	VariantRaw:          {RawVersionMin, RawVersionMax},
	VariantRaw32:        {RawVersionMin, RawVersionMax},
	VariantInstrText:    {TextVersion, TextVersion},
	VariantSampleText:   {TextVersion, TextVersion},
	VariantSampleBinary: {SampleBinaryVersion, SampleBinaryVersion},
}

// SupportedVersion reports whether the decoders understand the given
// version of a container variant.
func SupportedVersion(v Variant, version uint32) bool {
	r, ok := supportedVersions[v]
	return ok && version >= r.min && version <= r.max
}

var (
	ErrUnrecognized       = &Error{errors.New("unrecognized profile format")}
	ErrUnsupportedVersion = &Error{errors.New("unsupported format version")}
	ErrTruncated          = &Error{errors.New("truncated profile")}
	ErrMalformed          = &Error{errors.New("malformed profile")}
)

// Error marks decode failures caused by the input bytes rather than the
// environment. Decoders wrap the sentinels above with call-site context.
type Error struct{ err error }

func (e *Error) Error() string {
	return e.err.Error()
}

// IntegrityWarning records a non-fatal inconsistency observed while
// decoding, such as a counter checksum mismatch. The affected record is
// kept as read.
type IntegrityWarning struct {
	Function string
	Reason   string
}

func (w IntegrityWarning) String() string {
	if w.Function == "" {
		return w.Reason
	}
	return w.Function + ": " + w.Reason
}
