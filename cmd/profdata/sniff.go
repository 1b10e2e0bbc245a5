package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log/level"

	"github.com/profdata-go/profdata/pkg/profdata"
)

type sniffParams struct {
	paths []string
}

func addSniffParams(cmd commander) *sniffParams {
	params := &sniffParams{}
	cmd.Arg("file", "Files to classify.").Required().ExistingFilesVar(&params.paths)
	return params
}

func sniff(ctx context.Context, params *sniffParams) error {
	out := output(ctx)
	for _, path := range params.paths {
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tag, err := profdata.Detect(buf)
		if err != nil {
			// Undecodable compression makes the payload unknowable,
			// not the run a failure.
			level.Debug(logger).Log("msg", "detection failed", "path", path, "err", err)
			fmt.Fprintf(out, "%s: unknown\n", path)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", path, tag)
	}
	return nil
}
