package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binaryHeader(magic [MagicSize]byte, version uint32) []byte {
	b := append([]byte(nil), magic[:]...)
	return binary.LittleEndian.AppendUint32(b, version)
}

func Test_Sniff(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
		want Tag
	}{
		{
			name: "indexed",
			buf:  binaryHeader(MagicIndexed, 3),
			want: Tag{Family: FamilyInstrumentedBinary, Variant: VariantIndexed, Version: 3},
		},
		{
			name: "raw 64-bit",
			buf:  binaryHeader(MagicRaw, 2),
			want: Tag{Family: FamilyInstrumentedBinary, Variant: VariantRaw, Version: 2},
		},
		{
			name: "raw 32-bit",
			buf:  binaryHeader(MagicRaw32, 1),
			want: Tag{Family: FamilyInstrumentedBinary, Variant: VariantRaw32, Version: 1},
		},
		{
			name: "sampling binary",
			buf:  binaryHeader(MagicSampleBinary, 1),
			want: Tag{Family: FamilySampling, Variant: VariantSampleBinary, Version: 1},
		},
		{
			name: "future version is stamped, not gated",
			buf:  binaryHeader(MagicIndexed, 42),
			want: Tag{Family: FamilyInstrumentedBinary, Variant: VariantIndexed, Version: 42},
		},
		{
			name: "magic without version field",
			buf:  MagicRaw[:],
			want: Tag{Family: FamilyInstrumentedBinary, Variant: VariantRaw, Version: 0},
		},
		{
			name: "magic cut short",
			buf:  MagicIndexed[:7],
			want: Tag{},
		},
		{
			name: "empty",
			buf:  nil,
			want: Tag{},
		},
		{
			name: "whitespace only",
			buf:  []byte("  \n\t\n"),
			want: Tag{},
		},
		{
			name: "binary junk",
			buf:  []byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x00, 0x01, 0x02, 0x03},
			want: Tag{},
		},
		{
			name: "sampling text",
			buf:  []byte("total_samples=3\nmain;run 3\n"),
			want: Tag{Family: FamilySampling, Variant: VariantSampleText, Version: 1},
		},
		{
			name: "sampling text with leading whitespace",
			buf:  []byte("\n  total_samples=1\nmain 1\n"),
			want: Tag{Family: FamilySampling, Variant: VariantSampleText, Version: 1},
		},
		{
			name: "sampling text behind comments",
			buf:  []byte("# collected on host-7\n\ntotal_samples=3\nmain 3\n"),
			want: Tag{Family: FamilySampling, Variant: VariantSampleText, Version: 1},
		},
		{
			name: "sampling text with leading optional header",
			buf:  []byte("format=folded\ntotal_samples=1\nmain 1\n"),
			want: Tag{Family: FamilySampling, Variant: VariantSampleText, Version: 1},
		},
		{
			name: "instrumented text directive",
			buf:  []byte(":ir\nmain\n1024\n1\n60\n"),
			want: Tag{Family: FamilyInstrumentedText, Variant: VariantInstrText, Version: 1},
		},
		{
			name: "instrumented text comment first",
			buf:  []byte("# produced by a test\nmain\n1024\n1\n60\n"),
			want: Tag{Family: FamilyInstrumentedText, Variant: VariantInstrText, Version: 1},
		},
		{
			name: "multibyte text",
			buf:  []byte("frobniquer_généré\n7\n1\n1\n"),
			want: Tag{Family: FamilyInstrumentedText, Variant: VariantInstrText, Version: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sniff(tc.buf))
		})
	}
}

func Test_Sniff_boundedPeek(t *testing.T) {
	// Garbage past the peek window must not affect classification.
	buf := append(bytes.Repeat([]byte{'a'}, MaxHeaderPeek), 0x00, 0xff, 0x00)
	require.Equal(t, FamilyInstrumentedText, Sniff(buf).Family)

	// A multibyte rune split at the window boundary still counts as text.
	buf = append(bytes.Repeat([]byte{'a'}, MaxHeaderPeek-1), []byte("é")...)
	buf = append(buf, []byte(" la fin\n")...)
	require.Equal(t, FamilyInstrumentedText, Sniff(buf).Family)
}

func Test_SupportedVersion(t *testing.T) {
	for _, tc := range []struct {
		variant Variant
		version uint32
		want    bool
	}{
		{VariantIndexed, 0, false},
		{VariantIndexed, 1, true},
		{VariantIndexed, 3, true},
		{VariantIndexed, 4, false},
		{VariantRaw, 2, true},
		{VariantRaw, 3, false},
		{VariantRaw32, 1, true},
		{VariantSampleBinary, 0, false},
		{VariantSampleBinary, 1, true},
		{VariantSampleBinary, 2, false},
		{VariantInstrText, 1, true},
		{VariantSampleText, 1, true},
		{VariantNone, 1, false},
	} {
		assert.Equal(t, tc.want, SupportedVersion(tc.variant, tc.version),
			"variant %s version %d", tc.variant, tc.version)
	}
}

func Test_Tag_String(t *testing.T) {
	assert.Equal(t, "unknown", Tag{}.String())
	assert.Equal(t, "instrumented-binary/indexed v2",
		Tag{Family: FamilyInstrumentedBinary, Variant: VariantIndexed, Version: 2}.String())
	assert.Equal(t, "sampling/text v1",
		Tag{Family: FamilySampling, Variant: VariantSampleText, Version: 1}.String())
}

func Test_errorTaxonomy(t *testing.T) {
	wrapped := fmt.Errorf("counters section: %w", ErrTruncated)
	require.ErrorIs(t, wrapped, ErrTruncated)
	require.NotErrorIs(t, wrapped, ErrMalformed)

	var fe *Error
	require.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, "truncated profile", fe.Error())
}
