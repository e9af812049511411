package execx

import (
	"context"
	"strings"
	"testing"
)

func TestLocalCapturesStdout(t *testing.T) {
	result, err := NewLocal().Run(context.Background(), Command{Name: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success() {
		t.Fatalf("exit code %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Fatalf("stdout = %q", result.Stdout)
	}
}

func TestLocalReportsNonZeroExit(t *testing.T) {
	result, err := NewLocal().Run(context.Background(), Command{Name: "false"})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if result.Success() {
		t.Fatal("expected failure exit code")
	}
}

func TestLocalMissingBinary(t *testing.T) {
	_, err := NewLocal().Run(context.Background(), Command{Name: "dartup-no-such-binary"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestOutputPrefersStdout(t *testing.T) {
	r := Result{Stdout: " out \n", Stderr: "err"}
	if r.Output() != "out" {
		t.Fatalf("Output() = %q", r.Output())
	}
	r = Result{Stderr: " err \n"}
	if r.Output() != "err" {
		t.Fatalf("Output() = %q", r.Output())
	}
}
