// Package execx wraps subprocess invocation behind a narrow Runner interface
// so the tool adapters (systemd, git, pip, shell remediations) stay testable
// and independent of command-line plumbing.
package execx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the process default.
	Dir string
	// Env entries are appended to the current environment.
	Env []string
}

// Result carries the typed outcome of a finished subprocess.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the subprocess exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Output returns trimmed stdout, falling back to trimmed stderr.
func (r Result) Output() string {
	if out := strings.TrimSpace(r.Stdout); out != "" {
		return out
	}
	return strings.TrimSpace(r.Stderr)
}

// Runner executes commands. A non-nil error means the command could not be
// run at all (missing binary, cancelled context); a non-zero exit is reported
// through Result.ExitCode with a nil error.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Local runs commands on the host via os/exec.
type Local struct{}

// NewLocal returns the host-backed runner.
func NewLocal() Local { return Local{} }

func (Local) Run(ctx context.Context, cmd Command) (Result, error) {
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}
