// Package report defines the run result record: the single structured status
// document overwritten at the end of every run, and the outcome enum the
// stages feed into it.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies what an update stage did to one component.
type Outcome string

const (
	// OutcomeChanged means the component advanced to new content.
	OutcomeChanged Outcome = "changed"
	// OutcomeUnchanged means the component was already current.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSkipped means a precondition was not met (no versioned tree).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeError means an operation that should have succeeded did not.
	OutcomeError Outcome = "error"
)

// ComponentResult captures the per-component outcome of a run.
type ComponentResult struct {
	Outcome   Outcome `json:"outcome"`
	Version   string  `json:"version,omitempty"`
	WasActive bool    `json:"was_active"`
	Restarted bool    `json:"restarted"`
}

// Record is the machine-readable result document for one run.
type Record struct {
	RunID      string                     `json:"run_id"`
	Timestamp  time.Time                  `json:"timestamp"`
	Target     string                     `json:"target"`
	Force      bool                       `json:"force"`
	BackupPath string                     `json:"backup_path,omitempty"`
	Components map[string]ComponentResult `json:"components"`
	Errors     string                     `json:"errors,omitempty"`
}

// New starts a record for the given target scope.
func New(target string, force bool) *Record {
	return &Record{
		RunID:      uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Target:     target,
		Force:      force,
		Components: map[string]ComponentResult{},
	}
}

// SetComponent stores the result for one component.
func (r *Record) SetComponent(name string, result ComponentResult) {
	if r.Components == nil {
		r.Components = map[string]ComponentResult{}
	}
	r.Components[name] = result
}

// AppendError accumulates error text; individual failures never abort the
// run, they are reported here.
func (r *Record) AppendError(context string, err error) {
	if err == nil {
		return
	}
	entry := strings.TrimSpace(context)
	if entry != "" {
		entry += ": "
	}
	entry += err.Error()
	if r.Errors != "" {
		r.Errors += "; "
	}
	r.Errors += entry
}

// Write atomically overwrites the record at path and makes it world-readable
// so the web panel can surface the last run.
func (r *Record) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result record: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure result directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".update-status-*")
	if err != nil {
		return fmt.Errorf("stage result record: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write result record: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod result record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close result record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("install result record: %w", err)
	}
	return nil
}

// Load reads the record last written to path.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode result record: %w", err)
	}
	return &record, nil
}
