// Package backend builds the hardware model of an evaluated program and
// writes the generated sources.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/tools/txtar"

	"p4fpga/internal/bsv"
	"p4fpga/internal/diag"
	"p4fpga/internal/evaluator"
	"p4fpga/internal/fpga"
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// StdoutDir is the output directory that streams the artifacts to Stdout.
const StdoutDir = "-"

// Options configures artifact emission.
type Options struct {
	// OutputDir receives the four generated files and is created when
	// missing. Empty builds the model without writing anything; StdoutDir
	// writes a single txtar archive to Stdout instead.
	OutputDir string
	// Stdout receives the archive when OutputDir is StdoutDir. Nil means
	// os.Stdout.
	Stdout io.Writer
	// Reporter collects model-building diagnostics.
	Reporter *diag.Reporter
	// Log receives progress records. Nil discards them.
	Log *slog.Logger
}

// Result lists what was produced.
type Result struct {
	Model     *fpga.Model
	Artifacts *bsv.Artifacts
	// Paths holds the written files, empty in check-only and stdout modes.
	Paths []string
}

// Run builds the model of top and emits its artifacts. A nil toplevel is
// not an error and yields a nil result. A toplevel without main, or a model
// that cannot be built, yields an error wrapping fpga.ErrBuildFailed.
func Run(ctx context.Context, opts Options, top *evaluator.Toplevel, maps *sema.Maps) (*Result, error) {
	if top == nil {
		return nil, nil
	}
	if opts.Reporter == nil {
		return nil, fmt.Errorf("backend: no reporter provided")
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if !top.Main().IsValid() {
		opts.Reporter.Error("Could not locate top-level block; is there a %1% module?", ir.MainName)
		return nil, fmt.Errorf("backend: %w", fpga.ErrBuildFailed)
	}
	refs, err := maps.RefsFor(top.Program, "backend")
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	types, err := maps.TypesFor(top.Program, "backend")
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	prog := fpga.NewProgram(top, refs, types, opts.Reporter)
	if !prog.Build() {
		return nil, fmt.Errorf("backend: %w", fpga.ErrBuildFailed)
	}
	model := prog.Model()
	log.Debug("model built", "structs", len(model.Structs), "states", len(model.Parser.States), "controls", len(model.Controls))

	res := &Result{Model: model, Artifacts: bsv.Emit(model)}
	switch opts.OutputDir {
	case "":
		return res, nil
	case StdoutDir:
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		if _, err := w.Write(Archive(model.Name, res.Artifacts)); err != nil {
			return nil, fmt.Errorf("backend: write archive: %w", err)
		}
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("backend: create output dir: %w", err)
	}
	for _, f := range res.Artifacts.Files() {
		path := filepath.Join(opts.OutputDir, f.Name)
		if err := os.WriteFile(path, []byte(f.Data), 0o644); err != nil {
			return nil, fmt.Errorf("backend: write %s: %w", f.Name, err)
		}
		res.Paths = append(res.Paths, path)
		log.Debug("wrote artifact", "path", path, "bytes", len(f.Data))
	}
	return res, nil
}

// Archive bundles the artifacts as a txtar archive in their output order.
func Archive(name string, a *bsv.Artifacts) []byte {
	ar := &txtar.Archive{Comment: []byte(fmt.Sprintf("p4fpga artifacts for package %s\n", name))}
	for _, f := range a.Files() {
		ar.Files = append(ar.Files, txtar.File{Name: f.Name, Data: []byte(f.Data)})
	}
	return txtar.Format(ar)
}
