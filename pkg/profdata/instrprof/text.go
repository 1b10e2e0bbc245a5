package instrprof

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// The text format is line oriented. '#' starts a comment, blank lines
// are ignored, and ':' directives ahead of the first function set the
// profile flags. Each function block is a name line, a hash line, a
// counter-count line and that many counter lines, optionally followed
// by a value-profile block. A numeric line after the counters starts
// the value-profile block; names are assumed not to look like numbers.

const maxTextLine = 1 << 20

// DecodeText parses a textual instrumented profile.
func DecodeText(buf []byte) (*Profile, error) {
	p := NewProfile()
	p.Version = format.TextVersion
	t := &textParser{sc: bufio.NewScanner(bytes.NewReader(buf))}
	t.sc.Buffer(make([]byte, 0, 64*1024), maxTextLine)

	line, ok := t.next()
	for ok && strings.HasPrefix(line, ":") {
		switch line {
		case ":ir":
			p.Flags |= FlagIR
		case ":csir":
			p.Flags |= FlagIR | FlagContextSensitive
		case ":fe":
			// Front-end instrumentation, the default.
		case ":entry_first":
			p.Flags |= FlagEntryFirst
		default:
			return nil, fmt.Errorf("line %d: unknown directive %q: %w", t.line, line, format.ErrMalformed)
		}
		line, ok = t.next()
	}
	for ok {
		if err := t.readFunction(p, line); err != nil {
			return nil, err
		}
		line, ok = t.next()
	}
	if err := t.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %v: %w", t.line, err, format.ErrMalformed)
	}
	return p, nil
}

type textParser struct {
	sc      *bufio.Scanner
	line    int
	pending *string
}

func (t *textParser) next() (string, bool) {
	if t.pending != nil {
		line := *t.pending
		t.pending = nil
		return line, true
	}
	for t.sc.Scan() {
		t.line++
		line := strings.TrimSpace(t.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true
	}
	return "", false
}

func (t *textParser) peek() (string, bool) {
	line, ok := t.next()
	if ok {
		t.pending = &line
	}
	return line, ok
}

// uint reads the next line as a decimal.
func (t *textParser) uint(what string, bits int) (uint64, error) {
	line, ok := t.next()
	if !ok {
		return 0, fmt.Errorf("line %d: missing %s: %w", t.line, what, format.ErrTruncated)
	}
	v, err := strconv.ParseUint(line, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("line %d: bad %s %q: %w", t.line, what, line, format.ErrMalformed)
	}
	return v, nil
}

func (t *textParser) readFunction(p *Profile, name string) error {
	r := &Record{Name: name}
	if hash, ok := parseHex(name); ok {
		// A bare hash stands in for a name that was never known.
		r.Name, r.NameHash = "", hash
	}

	hashLine, ok := t.next()
	if !ok {
		return fmt.Errorf("line %d: function %s: missing hash: %w", t.line, name, format.ErrTruncated)
	}
	hash, err := parseU64(hashLine)
	if err != nil {
		return fmt.Errorf("line %d: function %s: bad hash %q: %w", t.line, name, hashLine, format.ErrMalformed)
	}
	r.FuncHash = hash

	n, err := t.uint("counter count", 32)
	if err != nil {
		return err
	}
	counters := make([]uint64, 0, min(n, 4096))
	for i := uint64(0); i < n; i++ {
		c, err := t.uint("counter", 64)
		if err != nil {
			return err
		}
		counters = append(counters, c)
	}
	if len(counters) > 0 {
		r.Counters = counters
	}

	if line, ok := t.peek(); ok && isDigits(line) {
		if err := t.readValueProf(p, r); err != nil {
			return err
		}
	}
	return p.Add(r)
}

func (t *textParser) readValueProf(p *Profile, r *Record) error {
	numKinds, err := t.uint("value kind count", 32)
	if err != nil {
		return err
	}
	if numKinds == 0 || numKinds > 2 {
		return fmt.Errorf("line %d: value kind count %d: %w", t.line, numKinds, format.ErrMalformed)
	}
	r.Values = make(ValueProfData, numKinds)
	for k := uint64(0); k < numKinds; k++ {
		rawKind, err := t.uint("value kind", 32)
		if err != nil {
			return err
		}
		kind := ValueKind(rawKind)
		if !kind.Valid() {
			return fmt.Errorf("line %d: unknown value kind %d: %w", t.line, rawKind, format.ErrMalformed)
		}
		if _, dup := r.Values[kind]; dup {
			return fmt.Errorf("line %d: duplicate value kind %s: %w", t.line, kind, format.ErrMalformed)
		}
		numSites, err := t.uint("site count", 32)
		if err != nil {
			return err
		}
		sites := make([]ValueSite, 0, min(numSites, 4096))
		for s := uint64(0); s < numSites; s++ {
			numEntries, err := t.uint("entry count", 32)
			if err != nil {
				return err
			}
			var site ValueSite
			for e := uint64(0); e < numEntries; e++ {
				entry, err := t.readValueEntry(p, kind)
				if err != nil {
					return err
				}
				site.Entries = append(site.Entries, entry)
			}
			sites = append(sites, site)
		}
		r.Values[kind] = sites
	}
	return nil
}

func (t *textParser) readValueEntry(p *Profile, kind ValueKind) (ValueEntry, error) {
	line, ok := t.next()
	if !ok {
		return ValueEntry{}, fmt.Errorf("line %d: missing value entry: %w", t.line, format.ErrTruncated)
	}
	// Targets may contain ':', the count follows the last one.
	i := strings.LastIndexByte(line, ':')
	if i <= 0 || i == len(line)-1 {
		return ValueEntry{}, fmt.Errorf("line %d: bad value entry %q: %w", t.line, line, format.ErrMalformed)
	}
	target, countStr := line[:i], line[i+1:]
	count, err := strconv.ParseUint(countStr, 10, 64)
	if err != nil {
		return ValueEntry{}, fmt.Errorf("line %d: bad value count %q: %w", t.line, countStr, format.ErrMalformed)
	}
	var value uint64
	if hash, isHex := parseHex(target); isHex {
		value = hash
	} else if kind == ValueKindIndirectCall {
		value = p.Symtab.Add(target)
	} else if value, err = parseU64(target); err != nil {
		return ValueEntry{}, fmt.Errorf("line %d: bad value %q: %w", t.line, target, format.ErrMalformed)
	}
	return ValueEntry{Value: value, Count: count}, nil
}

// parseU64 accepts a decimal or an 0x-prefixed hex number.
func parseU64(s string) (uint64, error) {
	if v, ok := parseHex(s); ok {
		return v, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseHex(s string) (uint64, bool) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
