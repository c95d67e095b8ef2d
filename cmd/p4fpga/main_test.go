package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
	"gopkg.in/yaml.v3"

	"p4fpga/internal/bsv"
	"p4fpga/internal/diag"
	"p4fpga/internal/fpga"
	"p4fpga/internal/frontend"
	"p4fpga/internal/passes"
)

// sandbox isolates a test from P4FPGA_* variables and from any p4fpga.yaml
// in the working directory. It returns the absolute path of the sample
// program.
func sandbox(t *testing.T) string {
	t.Helper()
	sample, err := filepath.Abs(filepath.Join("testdata", "switch.yaml"))
	require.NoError(t, err)
	for _, k := range []string{"P4FPGA_LANG", "P4FPGA_OUTPUT_DIR", "P4FPGA_DIAG_FORMAT", "P4FPGA_VERBOSE"} {
		t.Setenv(k, "")
	}
	chdir(t, t.TempDir())
	return sample
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCompileWritesArtifacts(t *testing.T) {
	sample := sandbox(t)
	out := filepath.Join(t.TempDir(), "gen")

	_, stderr, err := runCLI(t, "compile", "--out", out, sample)
	require.NoError(t, err, stderr)

	for _, name := range []string{bsv.ParserFile, bsv.DeparserFile, bsv.StructFile, bsv.GraphFile} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		require.NotEmpty(t, data, name)
		require.Contains(t, stderr, filepath.Join(out, name))
	}
}

func TestCompileToStdoutArchive(t *testing.T) {
	sample := sandbox(t)

	stdout, stderr, err := runCLI(t, "compile", "-o", "-", sample)
	require.NoError(t, err, stderr)

	ar := txtar.Parse([]byte(stdout))
	var names []string
	for _, f := range ar.Files {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{bsv.ParserFile, bsv.DeparserFile, bsv.StructFile, bsv.GraphFile}, names)
	require.Contains(t, string(ar.Comment), "p4fpga artifacts")
}

func TestCompileOutputDirFromConfig(t *testing.T) {
	sample := sandbox(t)
	out := filepath.Join(t.TempDir(), "from-config")
	cfg := writeFile(t, t.TempDir(), "p4fpga.yaml", "output_dir: "+out+"\n")

	_, stderr, err := runCLI(t, "compile", "--config", cfg, sample)
	require.NoError(t, err, stderr)
	require.FileExists(t, filepath.Join(out, bsv.StructFile))
}

func TestCheckReportsSummary(t *testing.T) {
	sample := sandbox(t)

	stdout, stderr, err := runCLI(t, "check", sample)
	require.NoError(t, err, stderr)
	require.Contains(t, stdout, "switch.yaml: ok")
	require.Contains(t, stdout, "2 parser states")
	require.Contains(t, stdout, "2 emitted headers")
}

func TestDumpIRRoundTrips(t *testing.T) {
	sample := sandbox(t)

	for _, stage := range []string{stageSimplify, stageMidEnd} {
		stdout, stderr, err := runCLI(t, "dump-ir", "--stage", stage, "--format", frontend.FormatYAML, sample)
		require.NoError(t, err, stderr)

		prog, err := frontend.Decode([]byte(stdout), frontend.FormatYAML, diag.NewReporter(nil, "text"))
		require.NoError(t, err, stage)
		require.NotNil(t, prog.Find("SwitchIngress"), stage)
	}
}

func TestDumpIRText(t *testing.T) {
	sample := sandbox(t)

	stdout, _, err := runCLI(t, "dump-ir", sample)
	require.NoError(t, err)
	require.Contains(t, stdout, "control SwitchIngress")
}

func TestDumpModel(t *testing.T) {
	sample := sandbox(t)

	stdout, stderr, err := runCLI(t, "dump-ir", "--stage", stageModel, sample)
	require.NoError(t, err, stderr)

	var m fpga.Model
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &m))
	require.NotNil(t, m.Parser)
	require.NotEmpty(t, m.Structs)
	require.Len(t, m.Controls, 1)
}

func TestDumpIRUnknownStage(t *testing.T) {
	sample := sandbox(t)

	_, _, err := runCLI(t, "dump-ir", "--stage", "backend", sample)
	require.ErrorContains(t, err, `unknown stage "backend"`)
}

func TestCompileWithoutMain(t *testing.T) {
	sandbox(t)
	src := writeFile(t, t.TempDir(), "lib.yaml", `decls:
  - header:
      name: h_t
      fields:
        - {name: f, type: bit<8>}
`)
	out := filepath.Join(t.TempDir(), "gen")

	_, stderr, err := runCLI(t, "compile", "--out", out, src)
	require.NoError(t, err)
	require.Contains(t, stderr, "no main package")
	require.NoDirExists(t, out)

	_, _, err = runCLI(t, "dump-ir", src)
	require.ErrorIs(t, err, errNoMain)
}

func TestMalformedDocumentIsRejected(t *testing.T) {
	sandbox(t)
	src := writeFile(t, t.TempDir(), "bad.yaml", `decls:
  - header:
      name: h_t
      fields:
        - {name: f, type: "bit<"}
`)

	_, stderr, err := runCLI(t, "check", src)
	require.ErrorIs(t, err, errRejected)
	require.Equal(t, 1, exitCode(err))
	require.Contains(t, stderr, "error: h_t.f:")
}

func TestTypeErrorAbortsBeforeEmission(t *testing.T) {
	sandbox(t)
	src := writeFile(t, t.TempDir(), "bad.yaml", `decls:
  - struct:
      name: s
      fields:
        - {name: f, type: missing_t}
`)
	out := filepath.Join(t.TempDir(), "gen")

	_, stderr, err := runCLI(t, "--diag-format", "json", "compile", "--out", out, src)
	require.ErrorIs(t, err, passes.ErrAborted)
	require.Equal(t, 1, exitCode(err))
	require.Contains(t, stderr, `"severity":"error"`)
	require.NoDirExists(t, out)
}

func TestInvalidFlags(t *testing.T) {
	sample := sandbox(t)

	_, _, err := runCLI(t, "check", "--lang", "p4-18", sample)
	require.ErrorContains(t, err, "unknown language version")
	require.Equal(t, 2, exitCode(err))

	_, _, err = runCLI(t, "check", "--diag-format", "xml", sample)
	require.ErrorContains(t, err, "diag_format must be text or json")

	_, _, err = runCLI(t, "check")
	require.Error(t, err)

	_, _, err = runCLI(t, "check", filepath.Join(t.TempDir(), "prog.p4"))
	require.ErrorContains(t, err, "unrecognized document extension")
}

func TestVerboseTracesPasses(t *testing.T) {
	sample := sandbox(t)
	t.Setenv("P4FPGA_VERBOSE", "true")

	_, stderr, err := runCLI(t, "check", sample)
	require.NoError(t, err)
	require.Contains(t, stderr, "pass finished")
	require.Contains(t, stderr, "stage=MidEnd")
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 1, exitCode(errors.Join(errors.New("x"), fpga.ErrBuildFailed)))
	require.Equal(t, 2, exitCode(errors.New("open prog.yaml: no such file")))
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
