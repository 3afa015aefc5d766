package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flexbackup-manager/internal/executor"
	"flexbackup-manager/internal/retention"
	"flexbackup-manager/internal/schedule"
)

// ReportFile is the name of the run report inside the log directory
const ReportFile = "last-run.json"

// SetStatus is the outcome of one backup set in a run
type SetStatus string

const (
	StatusCompleted SetStatus = "completed"
	StatusSkipped   SetStatus = "skipped"
	StatusFailed    SetStatus = "failed"
)

// SetReport records what happened to one set
type SetReport struct {
	Set         string           `json:"set"`
	Level       schedule.Level   `json:"level"`
	Status      SetStatus        `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	Directories []string         `json:"directories,omitempty"`
	Snapshot    string           `json:"snapshot,omitempty"`
	Result      *executor.Result `json:"result,omitempty"`

	archive *executor.ArchiveStats
}

// RunReport summarizes one invocation
type RunReport struct {
	RunID       string                   `json:"run_id"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at"`
	DryRun      bool                     `json:"dry_run"`
	Plan        *schedule.Plan           `json:"plan,omitempty"`
	Incremental []SetReport              `json:"incremental"`
	Full        []SetReport              `json:"full"`
	GC          []*retention.TierResult  `json:"gc,omitempty"`
	Archives    []*executor.ArchiveStats `json:"archives,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func (r *RunReport) addIncremental(sr SetReport) {
	r.Incremental = append(r.Incremental, sr)
	r.addArchive(sr)
}

func (r *RunReport) addFull(sr SetReport) {
	r.Full = append(r.Full, sr)
	r.addArchive(sr)
}

func (r *RunReport) addArchive(sr SetReport) {
	if sr.archive != nil {
		r.Archives = append(r.Archives, sr.archive)
	}
}

// Failed returns the sets whose backup failed, incremental first
func (r *RunReport) Failed() []string {
	var failed []string
	for _, list := range [][]SetReport{r.Incremental, r.Full} {
		for _, s := range list {
			if s.Status == StatusFailed {
				failed = append(failed, s.Set)
			}
		}
	}
	return failed
}

// GCFailed returns the sets whose retention sweep failed
func (r *RunReport) GCFailed() []string {
	var failed []string
	for _, t := range r.GC {
		failed = append(failed, t.Failed...)
	}
	return failed
}

// Write stores the report as JSON in dir, replacing any previous one
func (r *RunReport) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run report: %w", err)
	}

	path := filepath.Join(dir, ReportFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write run report: %w", err)
	}
	return path, nil
}

// ReadReport loads a report written by Write
func ReadReport(dir string) (*RunReport, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return nil, err
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse run report: %w", err)
	}
	return &r, nil
}
