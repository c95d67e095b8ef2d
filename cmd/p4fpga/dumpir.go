package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"p4fpga/internal/backend"
	"p4fpga/internal/evaluator"
	"p4fpga/internal/fpga"
	"p4fpga/internal/frontend"
	"p4fpga/internal/midend"
)

// Stages dump-ir can stop after.
const (
	stageSimplify = "simplify"
	stageMidEnd   = "midend"
	stageModel    = "model"
)

var errNoMain = errors.New("program has no main package")

func newDumpIRCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump-ir [flags] FILE",
		Short: "Print the program after a pipeline stage",
		Long: `Prints the program after the simplify or midend stage as a P4 listing
(text) or as a document (yaml, msgpack) that the other commands can read
back. --stage model prints the hardware model as YAML.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, _ := cmd.Flags().GetString("stage")
			format, _ := cmd.Flags().GetString("format")
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			return s.dump(cmd, args[0], stage, format)
		},
	}
	cmd.Flags().String("stage", stageMidEnd, "Stage to stop after (simplify, midend or model)")
	cmd.Flags().String("format", frontend.FormatText, "Program output format (text, yaml or msgpack)")
	return cmd
}

func (s *session) dump(cmd *cobra.Command, path, stage, format string) error {
	out := cmd.OutOrStdout()
	switch stage {
	case stageSimplify:
		prog, err := s.load(path)
		if err != nil {
			return err
		}
		simplified, err := midend.NewSimplify(evaluator.NewPass()).Run(s.env, prog)
		if err != nil {
			return err
		}
		return frontend.Encode(out, simplified, format)
	case stageMidEnd:
		mid, err := s.canonicalize(path)
		if err != nil {
			return err
		}
		if mid == nil {
			return errNoMain
		}
		return frontend.Encode(out, mid.Program, format)
	case stageModel:
		mid, err := s.canonicalize(path)
		if err != nil {
			return err
		}
		if mid == nil {
			return errNoMain
		}
		res, err := backend.Run(cmd.Context(), backend.Options{Reporter: s.reporter, Log: s.log}, mid.Toplevel, s.env.Maps)
		if err != nil {
			return err
		}
		return fpga.Dump(res.Model, out)
	}
	return fmt.Errorf("unknown stage %q (want %s, %s or %s)", stage, stageSimplify, stageMidEnd, stageModel)
}
