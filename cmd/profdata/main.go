package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Tooling for inspecting, merging, and checking profiling data files.").UsageWriter(os.Stdout)
	app.Version(version.Print("profdata"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)

	showCmd := app.Command("show", "Decode a profile and print its contents.")
	showParams := addShowParams(showCmd)

	sniffCmd := app.Command("sniff", "Report the container format of files without decoding them.")
	sniffParams := addSniffParams(sniffCmd)

	mergeCmd := app.Command("merge", "Merge profiles of one family into a single output file.")
	mergeParams := addMergeParams(mergeCmd)

	checkCmd := app.Command("check", "Replay a fixture corpus against its manifest and report regressions.")
	checkParams := addCheckParams(checkCmd)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case showCmd.FullCommand():
		os.Exit(checkError(show(ctx, showParams)))
	case sniffCmd.FullCommand():
		os.Exit(checkError(sniff(ctx, sniffParams)))
	case mergeCmd.FullCommand():
		os.Exit(checkError(merge(ctx, mergeParams)))
	case checkCmd.FullCommand():
		os.Exit(checkError(check(ctx, checkParams)))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	switch err {
	case nil:
		return 0
	case errRegressions:
		// The regressions are already visible in the summary table, so
		// just exit with an error code.
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
