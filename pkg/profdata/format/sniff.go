package format

import (
	"bytes"
	"encoding/binary"
	"unicode"
	"unicode/utf8"
)

// MaxHeaderPeek bounds how many leading bytes Sniff inspects.
const MaxHeaderPeek = 128

// Sniff classifies a buffer by inspecting at most MaxHeaderPeek leading
// bytes. A known Tag only means the container's magic or textual shape
// matched, not that the buffer decodes cleanly. Sniff never allocates
// and has no side effects.
func Sniff(buf []byte) Tag {
	if len(buf) >= MagicSize {
		head := buf[:MagicSize]
		switch {
		case bytes.Equal(head, MagicIndexed[:]):
			return Tag{Family: FamilyInstrumentedBinary, Variant: VariantIndexed, Version: headerVersion(buf)}
		case bytes.Equal(head, MagicRaw[:]):
			return Tag{Family: FamilyInstrumentedBinary, Variant: VariantRaw, Version: headerVersion(buf)}
		case bytes.Equal(head, MagicRaw32[:]):
			return Tag{Family: FamilyInstrumentedBinary, Variant: VariantRaw32, Version: headerVersion(buf)}
		case bytes.Equal(head, MagicSampleBinary[:]):
			return Tag{Family: FamilySampling, Variant: VariantSampleBinary, Version: headerVersion(buf)}
		}
	}
	return sniffText(buf)
}

// headerVersion reads the version field that follows the magic in every
// binary container. Zero means the buffer ends before the field; the
// decoders report such buffers as truncated before version gating.
func headerVersion(buf []byte) uint32 {
	if len(buf) < MagicSize+4 {
		return 0
	}
	return binary.LittleEndian.Uint32(buf[MagicSize:])
}

// sniffText guesses between the two textual dialects. Neither carries a
// magic, so after skipping comments the first content line decides:
// sampling profiles open with key=value headers, total_samples= being
// the canonical one, instrumented text with a directive or a name.
func sniffText(buf []byte) Tag {
	peek := buf
	if len(peek) > MaxHeaderPeek {
		peek = peek[:MaxHeaderPeek]
	}
	if !printable(peek) {
		return Tag{}
	}
	text := bytes.TrimLeftFunc(peek, unicode.IsSpace)
	for len(text) > 0 && text[0] == '#' {
		nl := bytes.IndexByte(text, '\n')
		if nl < 0 {
			// The whole window is one comment.
			return Tag{Family: FamilyInstrumentedText, Variant: VariantInstrText, Version: TextVersion}
		}
		text = bytes.TrimLeftFunc(text[nl+1:], unicode.IsSpace)
	}
	if len(text) == 0 {
		return Tag{}
	}
	if headerKeyLine(text) {
		return Tag{Family: FamilySampling, Variant: VariantSampleText, Version: TextVersion}
	}
	return Tag{Family: FamilyInstrumentedText, Variant: VariantInstrText, Version: TextVersion}
}

// headerKeyLine reports whether the first line has the key=value shape
// of a sampling header. Keys are identifiers, which no instrumented
// text line starts with up to the '='.
func headerKeyLine(text []byte) bool {
	line := text
	if nl := bytes.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	eq := bytes.IndexByte(line, '=')
	if eq <= 0 {
		return false
	}
	for i, c := range line[:eq] {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func printable(buf []byte) bool {
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			// A rune cut by the peek boundary is fine, a bad byte in
			// the middle is not.
			return len(buf) < utf8.UTFMax
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
		buf = buf[size:]
	}
	return true
}
