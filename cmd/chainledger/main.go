// Command chainledger inspects and maintains a stored chain: it loads chain
// documents, computes budgets and balances, and manages snapshot archives.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "chainledger: %v\n", err)
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return exitFailure
	}
	return exitOK
}
