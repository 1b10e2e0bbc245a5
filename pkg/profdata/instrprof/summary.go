package instrprof

// Summary aggregates the statistics reported for an instrumented
// profile.
type Summary struct {
	Functions             int
	TotalCounters         int
	MaxFunctionCount      uint64
	MaxInternalBlockCount uint64
	ValueSites            int
}

func (p *Profile) Summary() Summary {
	var s Summary
	for _, r := range p.Records {
		s.Functions++
		s.TotalCounters += len(r.Counters)
		if c := r.FunctionCount(); c > s.MaxFunctionCount {
			s.MaxFunctionCount = c
		}
		if len(r.Counters) > 1 {
			for _, c := range r.Counters[1:] {
				if c > s.MaxInternalBlockCount {
					s.MaxInternalBlockCount = c
				}
			}
		}
		for _, sites := range r.Values {
			s.ValueSites += len(sites)
		}
	}
	return s
}
