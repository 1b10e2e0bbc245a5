package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profdata-go/profdata/pkg/profdata"
	"github.com/profdata-go/profdata/pkg/profdata/instrprof"
)

func writeInstrFixture(t *testing.T, path string) {
	p := instrprof.NewProfile()
	p.Flags = instrprof.FlagIR
	require.NoError(t, p.Add(&instrprof.Record{Name: "main", FuncHash: 10, Counters: []uint64{42, 7}}))
	require.NoError(t, p.Add(&instrprof.Record{Name: "worker", FuncHash: 11, Counters: []uint64{9}}))
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = instrprof.WriteIndexed(f, p)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func Test_show_instrumented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.profdata")
	writeInstrFixture(t, path)

	var buf bytes.Buffer
	err := show(withOutput(context.Background(), &buf), &showParams{path: path, all: true, counts: true})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Format: instrumented-binary/indexed v3")
	assert.Contains(t, out, "  main:\n")
	assert.Contains(t, out, "Function count: 42")
	assert.Contains(t, out, "Block counts: [7]")
	assert.Contains(t, out, "Instrumentation level: IR")
	assert.Contains(t, out, "Total functions: 2")
	assert.Contains(t, out, "Maximum function count: 42")
	assert.Contains(t, out, "Maximum internal block count: 7")
}

func Test_show_sampling_pprof(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.folded")
	require.NoError(t, os.WriteFile(path, []byte("total_samples=3\nmain;f 2\ngc 1\n"), 0o644))

	pprofOut := filepath.Join(dir, "out.pb.gz")
	var buf bytes.Buffer
	err := show(withOutput(context.Background(), &buf), &showParams{path: path, all: true, pprofOut: pprofOut})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Total samples: 3")
	assert.Contains(t, buf.String(), "main;f 2")

	st, err := os.Stat(pprofOut)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}

func Test_show_pprofOnInstrumented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.profdata")
	writeInstrFixture(t, path)

	var buf bytes.Buffer
	err := show(withOutput(context.Background(), &buf), &showParams{path: path, pprofOut: "x"})
	require.Error(t, err)
}

func Test_sniff_output(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.profdata")
	writeInstrFixture(t, good)
	junk := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte{0x00, 0x01}, 0o644))

	var buf bytes.Buffer
	err := sniff(withOutput(context.Background(), &buf), &sniffParams{paths: []string{good, junk}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "a.profdata: instrumented-binary/indexed v3")
	assert.Contains(t, buf.String(), "junk.bin: unknown")
}

func Test_merge_samplingOutput(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.folded")
	b := filepath.Join(dir, "b.folded")
	require.NoError(t, os.WriteFile(a, []byte("total_samples=2\nmain 2\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("total_samples=1\nmain 1\n"), 0o644))
	out := filepath.Join(dir, "merged.bin")

	require.NoError(t, merge(context.Background(), &mergeParams{inputs: []string{a, b}, output: out}))

	p, err := profdata.ParseFile(out)
	require.NoError(t, err)
	require.NotNil(t, p.Samples)
	assert.Equal(t, uint64(3), p.Samples.TotalSamples)
	require.Len(t, p.Samples.Records, 1)
	assert.Equal(t, uint64(3), p.Samples.Records[0].Weight)
}

func Test_check_regressions(t *testing.T) {
	dir := t.TempDir()
	writeInstrFixture(t, filepath.Join(dir, "ok.profdata"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.bin"), []byte{0x00}, 0o644))
	const manifest = `fixtures:
  - path: ok.profdata
    expect: instrumented
  - path: junk.bin
    expect: instrumented
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644))

	var buf bytes.Buffer
	err := check(withOutput(context.Background(), &buf), &checkParams{dir: dir, manifest: "manifest.yaml", concurrency: 2})
	require.ErrorIs(t, err, errRegressions)
	assert.Contains(t, buf.String(), "unexpected-fail")
	assert.Contains(t, buf.String(), "2 fixtures: 1 match, 0 mismatch, 1 unexpected-fail, 0 unexpected-pass")
}
