// Package shell runs external commands in an explicit working directory and reports
// their outcome as a structured Result instead of ambient process state.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/MosesMendoza/packaging-cli/pkg/logging"
)

// Result describes a finished process
type Result struct {
	Args     []string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success returns true if the process exited with status 0
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Err returns an *ExitError for unsuccessful results and nil otherwise
func (r Result) Err() error {
	if r.Success() {
		return nil
	}

	return &ExitError{Result: r}
}

// ExitError is returned by Result.Err() for processes with a non-zero exit status
type ExitError struct {
	Result Result
}

var _ error = (*ExitError)(nil)

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Result.Args, " "), e.Result.ExitCode)
	stderr := strings.TrimSpace(e.Result.Stderr)
	if stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Runner starts name with args inside dir. A non-zero exit status is reported through
// Result.ExitCode; the error is only set if the process couldn't be run at all.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// ExecRunner implements Runner with os/exec
type ExecRunner struct {
	// Env is appended to the current environment
	Env []string
	// Stream additionally copies the process output to os.Stdout / os.Stderr
	Stream bool
}

var _ Runner = (*ExecRunner)(nil)

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	result := Result{
		Args: append([]string{name}, args...),
		Dir:  dir,
	}

	logging.Log(ctx).Debug().
		Str("dir", dir).
		Strs("args", result.Args).
		Msg("exec")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	if r.Stream {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		if eris.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		return result, eris.Wrapf(err, "Failed to run %s", name)
	}

	return result, nil
}
