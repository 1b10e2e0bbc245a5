package corpus

import (
	"context"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/profdata-go/profdata/pkg/profdata"
	"github.com/profdata-go/profdata/pkg/profdata/format"
)

const defaultConcurrency = 8

// Config configures a corpus run.
type Config struct {
	// Dir is the directory fixture paths are resolved against.
	Dir string
	// Concurrency bounds how many fixtures decode at once.
	Concurrency int
}

// Runner checks fixtures against a manifest.
type Runner struct {
	fs      afero.Fs
	logger  log.Logger
	metrics *Metrics
	config  Config
}

func NewRunner(fs afero.Fs, logger log.Logger, metrics *Metrics, config Config) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{fs: fs, logger: logger, metrics: metrics, config: config}
}

// Run decodes every manifest fixture and reports the outcomes. Decode
// failures are outcomes, not errors; the returned error aggregates
// fixture read failures, which leave nothing to report on.
func (r *Runner) Run(ctx context.Context, m *Manifest) (*Report, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	results := make([]Result, len(m.Fixtures))
	readErrs := make([]error, len(m.Fixtures))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for i, e := range m.Fixtures {
		i, e := i, e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], readErrs[i] = r.check(e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := multierror.New(readErrs...).Err(); err != nil {
		return nil, err
	}

	rep := &Report{Results: results}
	for _, res := range results {
		r.observe(res)
	}
	level.Info(r.logger).Log("msg", "corpus checked", "fixtures", len(results), "regressions", len(rep.Regressions()))
	return rep, nil
}

func (r *Runner) check(e Entry) (Result, error) {
	res := Result{Entry: e}
	path := e.Path
	if r.config.Dir != "" {
		path = filepath.Join(r.config.Dir, e.Path)
	}
	buf, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return res, errors.Wrapf(err, "fixture %s", e.Path)
	}
	res.Size = int64(len(buf))
	res.Tag = format.Sniff(buf)

	p, err := profdata.Parse(buf)
	if err != nil {
		res.Err = err
		res.Outcome = classify(e.Expect, "", err)
		level.Debug(r.logger).Log("msg", "fixture did not decode", "path", e.Path, "err", err)
		return res, nil
	}
	// The parse tag sees through gzip, the sniff tag does not.
	res.Tag = p.Tag
	res.Warnings = len(p.Warnings())
	res.Outcome = classify(e.Expect, p.Kind(), nil)
	return res, nil
}

func (r *Runner) observe(res Result) {
	if r.metrics != nil {
		r.metrics.fixtures.WithLabelValues(string(res.Outcome)).Inc()
		r.metrics.warnings.Add(float64(res.Warnings))
		r.metrics.bytes.Add(float64(res.Size))
	}
	if res.Outcome.Regression() {
		level.Warn(r.logger).Log("msg", "fixture regressed",
			"path", res.Entry.Path,
			"expect", res.Entry.Expect,
			"outcome", res.Outcome,
			"err", res.Err)
	}
}
