package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"p4fpga/internal/backend"
)

func newCompileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [flags] FILE",
		Short: "Generate Bluespec sources for a program",
		Long: `Runs the Simplify and MidEnd stages, builds the hardware model and writes
the generated files to the output directory. --out - prints them as one txtar
archive; an empty output directory only checks the program.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			res, err := s.compile(cmd, args[0], s.cfg.OutputDir)
			if err != nil || res == nil {
				return err
			}
			for _, p := range res.Paths {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output directory (- for a txtar archive on stdout)")
	return cmd
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Check that a program can be compiled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			res, err := s.compile(cmd, args[0], "")
			if err != nil || res == nil {
				return err
			}
			m := res.Model
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d records, %d parser states, %d controls, %d emitted headers)\n",
				args[0], len(m.Structs), len(m.Parser.States), len(m.Controls), len(m.Deparser.States))
			return nil
		},
	}
}

// compile runs the whole pipeline. A program without main yields a nil
// result and no error.
func (s *session) compile(cmd *cobra.Command, path, outDir string) (*backend.Result, error) {
	mid, err := s.canonicalize(path)
	if err != nil {
		return nil, err
	}
	if mid == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: no main package, nothing to generate\n", path)
		return nil, nil
	}
	return backend.Run(cmd.Context(), backend.Options{
		OutputDir: outDir,
		Stdout:    cmd.OutOrStdout(),
		Reporter:  s.reporter,
		Log:       s.log,
	}, mid.Toplevel, s.env.Maps)
}
