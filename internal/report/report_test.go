package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-status.json")

	record := New("all", true)
	record.BackupPath = "/var/lib/dartup/backups/20260824T120000"
	record.SetComponent("caller", ComponentResult{Outcome: OutcomeChanged, Version: "v2.19.0", WasActive: true, Restarted: true})
	record.SetComponent("wled", ComponentResult{Outcome: OutcomeSkipped})
	record.AppendError("caller", errors.New("pip install failed"))

	if err := record.Write(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.RunID != record.RunID || loaded.Target != "all" || !loaded.Force {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.Components["caller"].Outcome != OutcomeChanged {
		t.Fatalf("caller outcome: %+v", loaded.Components["caller"])
	}
	if loaded.Errors == "" {
		t.Fatal("accumulated errors lost")
	}
}

func TestWriteIsWorldReadableOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-status.json")

	first := New("caller", false)
	if err := first.Write(path); err != nil {
		t.Fatal(err)
	}
	second := New("wled", false)
	if err := second.Write(path); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0o044 != 0o044 {
		t.Fatalf("record must be world-readable, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Target != "wled" {
		t.Fatalf("overwrite lost: %q", loaded.Target)
	}
}

func TestAppendErrorAccumulates(t *testing.T) {
	record := New("all", false)
	record.AppendError("caller", errors.New("fetch failed"))
	record.AppendError("wled", errors.New("reset failed"))
	record.AppendError("wled", nil)

	want := "caller: fetch failed; wled: reset failed"
	if record.Errors != want {
		t.Fatalf("errors = %q, want %q", record.Errors, want)
	}
}
