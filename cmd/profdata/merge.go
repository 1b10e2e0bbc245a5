package main

import (
	"context"
	"os"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"

	"github.com/profdata-go/profdata/pkg/profdata"
	"github.com/profdata-go/profdata/pkg/profdata/instrprof"
	"github.com/profdata-go/profdata/pkg/profdata/sampleprof"
)

type mergeParams struct {
	inputs []string
	output string
	text   bool
}

func addMergeParams(cmd commander) *mergeParams {
	params := &mergeParams{}
	cmd.Arg("input", "Profiles to merge.").Required().ExistingFilesVar(&params.inputs)
	cmd.Flag("output", "Path of the merged profile.").Short('o').Required().StringVar(&params.output)
	cmd.Flag("text", "Write the merged profile in the text encoding.").Default("false").BoolVar(&params.text)
	return params
}

func merge(_ context.Context, params *mergeParams) error {
	profiles := make([]*profdata.Profile, len(params.inputs))
	for i, path := range params.inputs {
		p, err := profdata.ParseFile(path)
		if err != nil {
			return err
		}
		profiles[i] = p
	}
	merged, err := profdata.Merge(profiles...)
	if err != nil {
		return err
	}

	f, err := os.Create(params.output)
	if err != nil {
		return err
	}
	switch {
	case merged.Instrumented != nil:
		if params.text {
			err = instrprof.WriteText(f, merged.Instrumented)
		} else {
			_, err = instrprof.WriteIndexed(f, merged.Instrumented)
		}
	default:
		if params.text {
			err = sampleprof.WriteText(f, merged.Samples)
		} else {
			_, err = sampleprof.WriteBinary(f, merged.Samples)
		}
	}
	if err = multierror.New(err, f.Close()).Err(); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "merged profiles", "inputs", len(params.inputs), "output", params.output)
	return nil
}
