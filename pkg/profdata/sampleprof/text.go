package sampleprof

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// The text format opens with key=value header lines, total_samples
// being the only required one, followed by one entry per line: frames
// joined by ';' and the weight after the final space.
//
//	total_samples=5
//	main;compute;hash 3
//	main;io_wait 2

const maxTextLine = 1 << 20

// DecodeText parses a textual sampling profile.
func DecodeText(buf []byte) (*Profile, error) {
	p := &Profile{}
	sc := bufio.NewScanner(bytes.NewReader(buf))
	sc.Buffer(make([]byte, 0, 64*1024), maxTextLine)

	var (
		lineNum  int
		sawTotal bool
		inHeader = true
	)
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if inHeader && isHeaderLine(line) {
			key, value, _ := strings.Cut(line, "=")
			if key != "total_samples" {
				// Unknown header keys are ignored for forward
				// compatibility.
				continue
			}
			total, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad total_samples %q: %w", lineNum, value, format.ErrMalformed)
			}
			p.TotalSamples = total
			sawTotal = true
			continue
		}
		inHeader = false
		rec, err := parseSampleLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		p.Records = append(p.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %v: %w", lineNum, err, format.ErrMalformed)
	}
	if !sawTotal {
		return nil, fmt.Errorf("missing total_samples header: %w", format.ErrMalformed)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// isHeaderLine reports whether the line is a key=value header. Only
// identifier-shaped keys count, entry lines are free-form.
func isHeaderLine(s string) bool {
	key, _, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func parseSampleLine(s string) (Record, error) {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return Record{}, fmt.Errorf("entry %q has no weight field: %w", s, format.ErrMalformed)
	}
	stack, weightStr := strings.TrimSpace(s[:i]), s[i+1:]
	weight, err := strconv.ParseUint(weightStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("bad weight %q: %w", weightStr, format.ErrMalformed)
	}
	if stack == "" {
		return Record{}, fmt.Errorf("empty call stack: %w", format.ErrMalformed)
	}
	frames := strings.Split(stack, ";")
	for _, f := range frames {
		if f == "" {
			return Record{}, fmt.Errorf("entry %q has an empty frame: %w", s, format.ErrMalformed)
		}
	}
	return Record{CallStack: frames, Weight: weight}, nil
}
