package extractor

import (
	"context"
	"fmt"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
)

// Runner executes the extraction tool with args inside dir and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args []string) (string, error)
}

// CommandError describes a failed tool invocation.
type CommandError struct {
	ExitCode int    // Process exit code, -1 when the process did not finish
	Stderr   string // Captured standard error
	Err      error  // Start or context error, if any
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	return fmt.Sprintf("command exited with code %d: %s", e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs a binary found on PATH (or at an absolute path).
type ExecRunner struct {
	Binary string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir string, args []string) (string, error) {
	task := execute.ExecTask{
		Command: r.Binary,
		Args:    args,
		Cwd:     dir,
	}

	res, err := task.Execute(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &CommandError{ExitCode: -1, Stderr: res.Stderr, Err: ctxErr}
	}

	if err != nil {
		return "", &CommandError{ExitCode: -1, Stderr: res.Stderr, Err: err}
	}

	if res.ExitCode != 0 {
		return "", &CommandError{ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	return res.Stdout, nil
}
