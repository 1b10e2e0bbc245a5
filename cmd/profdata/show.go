package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/profdata-go/profdata/pkg/profdata"
	"github.com/profdata-go/profdata/pkg/profdata/instrprof"
	"github.com/profdata-go/profdata/pkg/profdata/sampleprof"
)

type showParams struct {
	path     string
	all      bool
	counts   bool
	pprofOut string
}

func addShowParams(cmd commander) *showParams {
	params := &showParams{}
	cmd.Arg("file", "Profile to show.").Required().ExistingFileVar(&params.path)
	cmd.Flag("all-functions", "Print every function, not just the summary.").Default("false").BoolVar(&params.all)
	cmd.Flag("counts", "With --all-functions, print raw block counts.").Default("false").BoolVar(&params.counts)
	cmd.Flag("pprof", "Convert a sampling profile to pprof and write it to this path.").StringVar(&params.pprofOut)
	return params
}

func show(ctx context.Context, params *showParams) error {
	p, err := profdata.ParseFile(params.path)
	if err != nil {
		return err
	}
	for _, w := range p.Warnings() {
		level.Warn(logger).Log("msg", "integrity warning", "detail", w.String())
	}
	fmt.Fprintln(output(ctx), "Format:", p.Tag)
	switch {
	case p.Instrumented != nil:
		return showInstrumented(ctx, params, p.Instrumented)
	default:
		return showSampling(ctx, params, p.Samples)
	}
}

func showInstrumented(ctx context.Context, params *showParams, p *instrprof.Profile) error {
	if params.pprofOut != "" {
		return errors.New("--pprof applies to sampling profiles only")
	}
	out := output(ctx)
	if params.all {
		fmt.Fprintln(out, "Counters:")
		for _, r := range p.SortedRecords() {
			fmt.Fprintf(out, "  %s:\n", r.DisplayName())
			fmt.Fprintf(out, "    Hash: 0x%016x\n", r.FuncHash)
			fmt.Fprintf(out, "    Counters: %d\n", len(r.Counters))
			fmt.Fprintf(out, "    Function count: %d\n", r.FunctionCount())
			if params.counts && len(r.Counters) > 1 {
				fmt.Fprintf(out, "    Block counts: %v\n", r.Counters[1:])
			}
			if sites := len(r.Values[instrprof.ValueKindIndirectCall]); sites > 0 {
				fmt.Fprintf(out, "    Indirect call sites: %d\n", sites)
			}
			if sites := len(r.Values[instrprof.ValueKindMemOpSize]); sites > 0 {
				fmt.Fprintf(out, "    Memory op sites: %d\n", sites)
			}
		}
	}

	mode := "front-end"
	if p.IR() {
		mode = "IR"
	}
	if p.ContextSensitive() {
		mode += ", context sensitive"
	}
	if p.EntryFirst() {
		mode += ", entry first"
	}
	s := p.Summary()
	fmt.Fprintln(out, "Instrumentation level:", mode)
	fmt.Fprintln(out, "Total functions:", s.Functions)
	fmt.Fprintln(out, "Maximum function count:", s.MaxFunctionCount)
	fmt.Fprintln(out, "Maximum internal block count:", s.MaxInternalBlockCount)
	if s.ValueSites > 0 {
		fmt.Fprintln(out, "Value profile sites:", s.ValueSites)
	}
	if len(p.BinaryIDs) > 0 {
		fmt.Fprintln(out, "Binary IDs:")
		for _, id := range p.BinaryIDs {
			fmt.Fprintf(out, "  %x\n", id)
		}
	}
	return nil
}

func showSampling(ctx context.Context, params *showParams, p *sampleprof.Profile) error {
	if params.pprofOut != "" {
		if err := writePprof(params.pprofOut, p); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "wrote pprof profile", "path", params.pprofOut)
	}
	out := output(ctx)
	fmt.Fprintln(out, "Total samples:", p.TotalSamples)
	fmt.Fprintln(out, "Stacks:", len(p.Records))
	if params.all {
		for _, r := range p.Records {
			fmt.Fprintf(out, "%s %d\n", strings.Join(r.CallStack, ";"), r.Weight)
		}
	}
	return nil
}

func writePprof(path string, p *sampleprof.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.ToPprof().Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
