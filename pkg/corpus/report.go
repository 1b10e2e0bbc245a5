package corpus

import (
	"github.com/samber/lo"

	"github.com/profdata-go/profdata/pkg/profdata/format"
)

// Outcome is how one fixture fared against its manifest entry.
type Outcome string

const (
	// OutcomeMatch fixtures behaved as the manifest expects.
	OutcomeMatch Outcome = "match"
	// OutcomeMismatch fixtures decoded cleanly, but as the wrong
	// family.
	OutcomeMismatch Outcome = "mismatch"
	// OutcomeUnexpectedFail fixtures were expected to decode and did
	// not.
	OutcomeUnexpectedFail Outcome = "unexpected-fail"
	// OutcomeUnexpectedPass fixtures are known bad yet now decode.
	OutcomeUnexpectedPass Outcome = "unexpected-pass"
)

// Regression reports whether the outcome violates the manifest.
func (o Outcome) Regression() bool { return o != OutcomeMatch }

func classify(expect Classification, kind string, err error) Outcome {
	if err != nil {
		if expect == ExpectBad {
			return OutcomeMatch
		}
		return OutcomeUnexpectedFail
	}
	switch expect {
	case ExpectBad:
		return OutcomeUnexpectedPass
	case ExpectInstrumented:
		if kind == "instrumented" {
			return OutcomeMatch
		}
	case ExpectSample:
		if kind == "sampling" {
			return OutcomeMatch
		}
	}
	return OutcomeMismatch
}

// Result is the outcome of one fixture.
type Result struct {
	Entry    Entry
	Tag      format.Tag
	Size     int64
	Warnings int
	// Err is the decode failure, if any. For known-bad fixtures a
	// non-nil Err is the expected outcome.
	Err     error
	Outcome Outcome
}

// Report collects one result per manifest entry, in manifest order.
type Report struct {
	Results []Result
}

// Regressions returns the results that violate the manifest.
func (r *Report) Regressions() []Result {
	return lo.Filter(r.Results, func(res Result, _ int) bool {
		return res.Outcome.Regression()
	})
}

// Counts returns how many results each outcome got.
func (r *Report) Counts() map[Outcome]int {
	return lo.CountValuesBy(r.Results, func(res Result) Outcome {
		return res.Outcome
	})
}

// Ok reports a run with no regressions.
func (r *Report) Ok() bool { return len(r.Regressions()) == 0 }
