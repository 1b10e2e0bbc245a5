// Package sampleprof decodes and encodes sampling profiles: weighted
// call stacks in a text and a binary container.
package sampleprof

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// Record is one weighted call stack, outermost frame first.
type Record struct {
	CallStack []string
	Weight    uint64
}

// Profile is a decoded sampling profile. TotalSamples is the weight sum
// declared by the producer; decoders and writers verify that it matches
// the records.
type Profile struct {
	TotalSamples uint64
	Records      []Record
}

func (p *Profile) validate() error {
	var sum uint64
	for i, r := range p.Records {
		if len(r.CallStack) == 0 {
			return fmt.Errorf("entry %d: empty call stack: %w", i, format.ErrMalformed)
		}
		for _, f := range r.CallStack {
			if f == "" {
				return fmt.Errorf("entry %d: empty frame: %w", i, format.ErrMalformed)
			}
			if !utf8.ValidString(f) {
				return fmt.Errorf("entry %d: frame is not valid UTF-8: %w", i, format.ErrMalformed)
			}
		}
		sum = saturatingAdd(sum, r.Weight)
	}
	if sum != p.TotalSamples {
		return fmt.Errorf("weights sum to %d, header declares %d: %w", sum, p.TotalSamples, format.ErrMalformed)
	}
	return nil
}

// stackKey flattens the frame list with length prefixes, so frame
// boundaries survive any frame content.
func stackKey(stack []string) string {
	var b strings.Builder
	for _, f := range stack {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return b.String()
}

// Merge folds other into p, summing the weights of identical stacks.
// Stacks keep their first-seen order.
func (p *Profile) Merge(other *Profile) {
	idx := make(map[string]int, len(p.Records))
	for i, r := range p.Records {
		idx[stackKey(r.CallStack)] = i
	}
	for _, r := range other.Records {
		k := stackKey(r.CallStack)
		if i, ok := idx[k]; ok {
			p.Records[i].Weight = saturatingAdd(p.Records[i].Weight, r.Weight)
			continue
		}
		idx[k] = len(p.Records)
		p.Records = append(p.Records, Record{
			CallStack: append([]string(nil), r.CallStack...),
			Weight:    r.Weight,
		})
	}
	p.TotalSamples = saturatingAdd(p.TotalSamples, other.TotalSamples)
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return math.MaxUint64
}
