package corpus

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profdata-go/profdata/pkg/profdata/format"
	"github.com/profdata-go/profdata/pkg/profdata/instrprof"
	"github.com/profdata-go/profdata/pkg/profdata/sampleprof"
)

func corpusFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()

	p := instrprof.NewProfile()
	require.NoError(t, p.Add(&instrprof.Record{Name: "main", FuncHash: 7, Counters: []uint64{1, 2}}))
	var instr bytes.Buffer
	_, err := instrprof.WriteIndexed(&instr, p)
	require.NoError(t, err)

	var samples bytes.Buffer
	_, err = sampleprof.WriteBinary(&samples, &sampleprof.Profile{
		TotalSamples: 2,
		Records:      []sampleprof.Record{{CallStack: []string{"main"}, Weight: 2}},
	})
	require.NoError(t, err)

	for path, data := range map[string][]byte{
		"fixtures/instr.profdata": instr.Bytes(),
		"fixtures/samples.bin":    samples.Bytes(),
		"fixtures/samples.folded": []byte("total_samples=1\nmain 1\n"),
		"fixtures/extra.folded":   []byte("total_samples=1\ngc 1\n"),
		"fixtures/cut.profdata":   instr.Bytes()[:20],
		"fixtures/junk.bin":       {0x00, 0x01, 0x02},
	} {
		require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
	}
	return fs
}

func Test_Runner_Run(t *testing.T) {
	reg := prometheus.NewRegistry()
	runner := NewRunner(corpusFs(t), nil, NewMetrics(reg), Config{Dir: "fixtures", Concurrency: 2})

	m := &Manifest{Fixtures: []Entry{
		{Path: "instr.profdata", Expect: ExpectInstrumented},
		{Path: "samples.bin", Expect: ExpectSample},
		{Path: "cut.profdata", Expect: ExpectBad},
		{Path: "junk.bin", Expect: ExpectInstrumented},
		{Path: "extra.folded", Expect: ExpectBad},
		{Path: "samples.folded", Expect: ExpectInstrumented},
	}}
	rep, err := runner.Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, rep.Results, 6)

	assert.False(t, rep.Ok())
	assert.Len(t, rep.Regressions(), 3)
	assert.Equal(t, map[Outcome]int{
		OutcomeMatch:          3,
		OutcomeMismatch:       1,
		OutcomeUnexpectedFail: 1,
		OutcomeUnexpectedPass: 1,
	}, rep.Counts())

	// Results keep manifest order.
	assert.Equal(t, "instr.profdata", rep.Results[0].Entry.Path)
	assert.Equal(t, OutcomeMatch, rep.Results[0].Outcome)
	assert.Equal(t, format.VariantIndexed, rep.Results[0].Tag.Variant)

	// The expected failure of a known-bad fixture is kept on the result,
	// along with what the sniffer made of it.
	assert.Equal(t, OutcomeMatch, rep.Results[2].Outcome)
	require.ErrorIs(t, rep.Results[2].Err, format.ErrTruncated)
	assert.Equal(t, format.VariantIndexed, rep.Results[2].Tag.Variant)

	assert.Equal(t, 3.0, testutil.ToFloat64(runner.metrics.fixtures.WithLabelValues(string(OutcomeMatch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(runner.metrics.fixtures.WithLabelValues(string(OutcomeMismatch))))
	assert.Equal(t, 1.0, testutil.ToFloat64(runner.metrics.fixtures.WithLabelValues(string(OutcomeUnexpectedFail))))
	assert.Equal(t, 1.0, testutil.ToFloat64(runner.metrics.fixtures.WithLabelValues(string(OutcomeUnexpectedPass))))
}

func Test_Runner_emptyManifest(t *testing.T) {
	runner := NewRunner(afero.NewMemMapFs(), nil, nil, Config{})
	rep, err := runner.Run(context.Background(), &Manifest{})
	require.NoError(t, err)
	assert.True(t, rep.Ok())
	assert.Empty(t, rep.Results)
}

func Test_Runner_missingFixture(t *testing.T) {
	runner := NewRunner(corpusFs(t), nil, nil, Config{Dir: "fixtures"})
	_, err := runner.Run(context.Background(), &Manifest{Fixtures: []Entry{
		{Path: "nope.profdata", Expect: ExpectInstrumented},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.profdata")
}

func Test_Runner_invalidManifest(t *testing.T) {
	runner := NewRunner(afero.NewMemMapFs(), nil, nil, Config{})
	_, err := runner.Run(context.Background(), &Manifest{Fixtures: []Entry{
		{Path: "", Expect: "x"},
	}})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
