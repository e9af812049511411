package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dartup/internal/report"
)

func writeTestConfig(t *testing.T) (configPath, stateDir string) {
	t.Helper()
	base := t.TempDir()
	stateDir = filepath.Join(base, "state")
	body := fmt.Sprintf(`env_file = ""

[paths]
state_dir = %q
log_dir = %q
`, stateDir, filepath.Join(base, "logs"))

	configPath = filepath.Join(base, "dartup.toml")
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, stateDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusWithoutRecord(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := execute(t, "--config", configPath, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No update has run yet.") {
		t.Fatalf("output = %q", out)
	}
}

func TestStatusRendersLastRecord(t *testing.T) {
	configPath, stateDir := writeTestConfig(t)

	record := report.New("all", false)
	record.SetComponent("caller", report.ComponentResult{
		Outcome:   report.OutcomeChanged,
		Version:   "v2.1.0",
		WasActive: true,
		Restarted: true,
	})
	if err := record.Write(filepath.Join(stateDir, "update-status.json")); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", configPath, "status")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{record.RunID, "caller", "changed", "v2.1.0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusJSONOutput(t *testing.T) {
	configPath, stateDir := writeTestConfig(t)

	record := report.New("wled", true)
	if err := record.Write(filepath.Join(stateDir, "update-status.json")); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", configPath, "status", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"run_id"`) || !strings.Contains(out, record.RunID) {
		t.Fatalf("json output = %q", out)
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	configPath, stateDir := writeTestConfig(t)

	out, err := execute(t, "--config", configPath, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, stateDir) {
		t.Fatalf("config show missing state dir:\n%s", out)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	if _, err := execute(t, "config", "init", "--path", target); err != nil {
		t.Fatal(err)
	}
	body, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "state_dir") {
		t.Fatalf("sample config looks wrong:\n%s", body)
	}

	// A second init without --overwrite must refuse.
	if _, err := execute(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
}

func TestForceEnabled(t *testing.T) {
	if !forceEnabled(true) {
		t.Fatal("flag must force")
	}
	t.Setenv("DARTUP_FORCE", "1")
	if !forceEnabled(false) {
		t.Fatal("DARTUP_FORCE=1 must force")
	}
	t.Setenv("DARTUP_FORCE", "off")
	if forceEnabled(false) {
		t.Fatal("DARTUP_FORCE=off must not force")
	}
}
