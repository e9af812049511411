package testsupport

import (
	"context"
	"strings"
	"sync"

	"dartup/internal/execx"
)

// FakeRunner records every command and answers from a scripted handler.
// Without a handler every command succeeds with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []execx.Command
	Handler func(execx.Command) (execx.Result, error)
}

func (f *FakeRunner) Run(_ context.Context, cmd execx.Command) (execx.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.Handler != nil {
		return f.Handler(cmd)
	}
	return execx.Result{}, nil
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []execx.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execx.Command{}, f.calls...)
}

// CommandLines renders recorded commands as space-joined strings for
// substring assertions.
func (f *FakeRunner) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		lines = append(lines, strings.Join(append([]string{call.Name}, call.Args...), " "))
	}
	return lines
}

// Ran reports whether any recorded command line contains the fragment.
func (f *FakeRunner) Ran(fragment string) bool {
	for _, line := range f.CommandLines() {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
