// Command p4fpga compiles a serialized P4 program into Bluespec sources for
// an FPGA packet pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"p4fpga/internal/fpga"
	"p4fpga/internal/passes"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// run executes one command line. Diagnostics go to stderr, generated text
// to stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// exitCode is 1 when the program itself was rejected and 2 for usage and
// I/O problems.
func exitCode(err error) int {
	switch {
	case errors.Is(err, passes.ErrAborted), errors.Is(err, fpga.ErrBuildFailed), errors.Is(err, errRejected):
		return 1
	default:
		return 2
	}
}
