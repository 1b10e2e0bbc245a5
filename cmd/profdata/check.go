package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/profdata-go/profdata/pkg/corpus"
)

type checkParams struct {
	dir         string
	manifest    string
	concurrency int
}

func addCheckParams(cmd commander) *checkParams {
	params := &checkParams{}
	cmd.Arg("dir", "Corpus directory.").Required().ExistingDirVar(&params.dir)
	cmd.Flag("manifest", "Manifest path, relative to the corpus directory.").Default("manifest.yaml").StringVar(&params.manifest)
	cmd.Flag("concurrency", "How many fixtures to decode at once.").Default("8").IntVar(&params.concurrency)
	return params
}

var errRegressions = errors.New("corpus has regressions")

func check(ctx context.Context, params *checkParams) error {
	fs := afero.NewOsFs()
	manifest, err := corpus.LoadManifest(fs, filepath.Join(params.dir, params.manifest))
	if err != nil {
		return err
	}
	runner := corpus.NewRunner(fs, logger, corpus.NewMetrics(nil), corpus.Config{
		Dir:         params.dir,
		Concurrency: params.concurrency,
	})
	rep, err := runner.Run(ctx, manifest)
	if err != nil {
		return err
	}

	out := output(ctx)
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Fixture", "Expect", "Outcome", "Format", "Size"})
	for _, res := range rep.Results {
		table.Append([]string{
			res.Entry.Path,
			string(res.Entry.Expect),
			string(res.Outcome),
			res.Tag.String(),
			humanize.Bytes(uint64(res.Size)),
		})
	}
	table.Render()

	counts := rep.Counts()
	fmt.Fprintf(out, "%d fixtures: %d match, %d mismatch, %d unexpected-fail, %d unexpected-pass\n",
		len(rep.Results),
		counts[corpus.OutcomeMatch],
		counts[corpus.OutcomeMismatch],
		counts[corpus.OutcomeUnexpectedFail],
		counts[corpus.OutcomeUnexpectedPass])
	if !rep.Ok() {
		return errRegressions
	}
	return nil
}
