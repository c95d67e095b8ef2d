package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"p4fpga/internal/config"
	"p4fpga/internal/diag"
	"p4fpga/internal/frontend"
	"p4fpga/internal/ir"
	"p4fpga/internal/midend"
	"p4fpga/internal/passes"
)

// errRejected marks a document the front end could not turn into a program.
var errRejected = errors.New("program rejected")

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	lang       string
	diagFormat string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "p4fpga",
		Short: "p4fpga - P4 to Bluespec compiler for FPGA pipelines",
		Long: `p4fpga canonicalizes a serialized P4 program and generates the Bluespec
parser, deparser and record definitions of its pipeline.

Commands:
  compile     Generate ParserGenerated.bsv, DeparserGenerated.bsv,
              StructGenerated.bsv and graph.dot
  check       Run the whole pipeline without writing anything
  dump-ir     Print the program after a stage, or the hardware model

Programs are read from .yaml/.yml or .msgpack/.mpk documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file path (default ./p4fpga.yaml when present)")
	root.PersistentFlags().StringVar(&opts.lang, "lang", "", "Language version (p4-14 or p4-16)")
	root.PersistentFlags().StringVar(&opts.diagFormat, "diag-format", "", "Diagnostic output format (text or json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Trace passes on stderr")

	root.AddCommand(newCompileCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newDumpIRCmd(opts))
	return root
}

// session is the state of one compilation: the merged configuration, the
// shared reporter and the pass environment.
type session struct {
	cfg      *config.Config
	reporter *diag.Reporter
	env      *passes.Env
	log      *slog.Logger
}

// newSession loads the configuration and lets explicitly set flags win.
func newSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("lang") {
		cfg.Lang = opts.lang
	}
	if flags.Changed("diag-format") {
		cfg.DiagFormat = opts.diagFormat
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if flags.Lookup("out") != nil && flags.Changed("out") {
		cfg.OutputDir, _ = flags.GetString("out")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}

	var log *slog.Logger
	if cfg.Verbose {
		log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	reporter := diag.NewReporter(cmd.ErrOrStderr(), cfg.DiagFormat)
	env := passes.NewEnv(reporter, dialect, log)
	return &session{cfg: cfg, reporter: reporter, env: env, log: env.Log}, nil
}

// load reads the program document at path.
func (s *session) load(path string) (*ir.Program, error) {
	prog, err := frontend.Load(path, s.reporter)
	if err != nil {
		if s.reporter.HasErrors() {
			return nil, fmt.Errorf("%w: %v", errRejected, err)
		}
		return nil, err
	}
	s.log.Debug("program loaded", "path", path, "decls", len(prog.Decls))
	return prog, nil
}

// canonicalize runs both midend stages. A nil result means the program has
// no main package.
func (s *session) canonicalize(path string) (*midend.Result, error) {
	prog, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return midend.Run(s.env, prog)
}
