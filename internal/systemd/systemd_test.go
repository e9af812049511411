package systemd

import (
	"context"
	"strings"
	"testing"

	"dartup/internal/execx"
	"dartup/internal/logging"
	"dartup/internal/testsupport"
)

// fakeSystemctl answers systemctl queries for a single unit with the given
// existence and activity, failing stop/restart according to the flags.
func fakeSystemctl(unit string, exists, active bool, failRestart, failStart bool) func(execx.Command) (execx.Result, error) {
	return func(cmd execx.Command) (execx.Result, error) {
		if cmd.Name != "systemctl" {
			return execx.Result{ExitCode: 1}, nil
		}
		switch cmd.Args[0] {
		case "list-unit-files":
			if exists && cmd.Args[1] == unit+".service" {
				return execx.Result{Stdout: unit + ".service enabled\n"}, nil
			}
			return execx.Result{ExitCode: 1}, nil
		case "is-active":
			if active {
				return execx.Result{}, nil
			}
			return execx.Result{ExitCode: 3}, nil
		case "stop":
			return execx.Result{}, nil
		case "restart":
			if failRestart {
				return execx.Result{ExitCode: 1, Stderr: "restart refused"}, nil
			}
			return execx.Result{}, nil
		case "start":
			if failStart {
				return execx.Result{ExitCode: 1, Stderr: "start refused"}, nil
			}
			return execx.Result{}, nil
		}
		return execx.Result{}, nil
	}
}

func TestStopIfRunningReportsWasActive(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: fakeSystemctl("darts-caller", true, true, false, false)}
	client := NewClient(runner, logging.NewNop())

	if !client.StopIfRunning(context.Background(), "darts-caller") {
		t.Fatal("expected was-active for running unit")
	}
	if !runner.Ran("systemctl stop darts-caller.service") {
		t.Fatalf("stop not invoked: %v", runner.CommandLines())
	}
}

func TestStopIfRunningInactiveUnit(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: fakeSystemctl("darts-caller", true, false, false, false)}
	client := NewClient(runner, logging.NewNop())

	if client.StopIfRunning(context.Background(), "darts-caller") {
		t.Fatal("inactive unit must report not-was-active")
	}
	if runner.Ran("systemctl stop") {
		t.Fatal("stop must not run for inactive unit")
	}
}

func TestStopIfRunningMissingUnit(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: fakeSystemctl("darts-caller", false, false, false, false)}
	client := NewClient(runner, logging.NewNop())

	if client.StopIfRunning(context.Background(), "darts-caller") {
		t.Fatal("missing unit must report not-was-active")
	}
}

func TestRestartIfExistsMissingUnitIsSuccess(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: fakeSystemctl("darts-wled", false, false, false, false)}
	client := NewClient(runner, logging.NewNop())

	if err := client.RestartIfExists(context.Background(), "darts-wled"); err != nil {
		t.Fatalf("missing unit should not error: %v", err)
	}
	if runner.Ran("systemctl restart") {
		t.Fatal("restart must not run for missing unit")
	}
}

func TestRestartIfExistsFallsBackToStart(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: fakeSystemctl("darts-wled", true, true, true, false)}
	client := NewClient(runner, logging.NewNop())

	if err := client.RestartIfExists(context.Background(), "darts-wled"); err != nil {
		t.Fatalf("start fallback should succeed: %v", err)
	}
	if !runner.Ran("systemctl start darts-wled.service") {
		t.Fatalf("start fallback missing: %v", runner.CommandLines())
	}
}

func TestRestartIfExistsReportsHardFailure(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: fakeSystemctl("autodarts-web", true, true, true, true)}
	client := NewClient(runner, logging.NewNop())

	err := client.RestartIfExists(context.Background(), "autodarts-web")
	if err == nil {
		t.Fatal("expected error when restart and start both fail")
	}
	if !strings.Contains(err.Error(), "autodarts-web") {
		t.Fatalf("error should name the unit: %v", err)
	}
}

func TestUnitNameSuffix(t *testing.T) {
	if unitName("darts-caller") != "darts-caller.service" {
		t.Fatalf("bare name: %q", unitName("darts-caller"))
	}
	if unitName("custom.timer") != "custom.timer" {
		t.Fatalf("suffixed name must pass through: %q", unitName("custom.timer"))
	}
}
