package sampleprof

import (
	"math"

	"github.com/google/pprof/profile"
)

// ToPprof converts the profile to the pprof exchange format, one sample
// per record with a single samples/count value. pprof wants the leaf
// first, records store the root first.
func (p *Profile) ToPprof() *profile.Profile {
	out := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "samples", Unit: "count"},
		Period:     1,
	}
	funcs := make(map[string]*profile.Function)
	locs := make(map[string]*profile.Location)
	locFor := func(frame string) *profile.Location {
		if l, ok := locs[frame]; ok {
			return l
		}
		fn, ok := funcs[frame]
		if !ok {
			fn = &profile.Function{
				ID:         uint64(len(funcs) + 1),
				Name:       frame,
				SystemName: frame,
			}
			funcs[frame] = fn
			out.Function = append(out.Function, fn)
		}
		l := &profile.Location{
			ID:   uint64(len(locs) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		locs[frame] = l
		out.Location = append(out.Location, l)
		return l
	}
	for _, r := range p.Records {
		s := &profile.Sample{
			Value: []int64{int64(min(r.Weight, math.MaxInt64))},
		}
		for i := len(r.CallStack) - 1; i >= 0; i-- {
			s.Location = append(s.Location, locFor(r.CallStack[i]))
		}
		out.Sample = append(out.Sample, s)
	}
	return out
}
