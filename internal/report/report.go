// Package report records the outcome of restore runs as signed JSON files.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"restorable.io/restorable-home/internal/restore"
	"restorable.io/restorable-home/internal/verify"
)

// ReportVersion is the current report format version.
const ReportVersion = "1"

// Report describes one restore run.
type Report struct {
	Version   string               `json:"version"`
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	MachineID string               `json:"machine_id"`
	TargetDir string               `json:"target_dir"`
	Restore   *restore.Result      `json:"restore,omitempty"`
	Error     string               `json:"error,omitempty"`
	Checks    []verify.CheckResult `json:"checks"`
	Summary   Summary              `json:"summary"`
	Signature string               `json:"signature,omitempty"`
}

// Summary provides an overview of the restore outcome.
type Summary struct {
	Success          bool   `json:"success"`
	Fresh            bool   `json:"fresh"`
	ArchivesRestored int    `json:"archives_restored"`
	TotalChecks      int    `json:"total_checks"`
	PassedChecks     int    `json:"passed_checks"`
	FailedChecks     int    `json:"failed_checks"`
	CriticalFailures int    `json:"critical_failures"`
	WarningFailures  int    `json:"warning_failures"`
	RestoreDuration  string `json:"restore_duration,omitempty"`
}

// ReportBuilder helps construct reports.
type ReportBuilder struct {
	report *Report
}

// NewReportBuilder creates a new report builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{
		report: &Report{
			Version:   ReportVersion,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (b *ReportBuilder) WithID(id string) *ReportBuilder {
	b.report.ID = id
	return b
}

func (b *ReportBuilder) WithMachineID(machineID string) *ReportBuilder {
	b.report.MachineID = machineID
	return b
}

func (b *ReportBuilder) WithTargetDir(dir string) *ReportBuilder {
	b.report.TargetDir = dir
	return b
}

// WithResult attaches the restore result. Its run id becomes the report id
// unless an id was set explicitly.
func (b *ReportBuilder) WithResult(res *restore.Result) *ReportBuilder {
	b.report.Restore = res
	if res != nil && b.report.ID == "" {
		b.report.ID = res.RunID
	}
	return b
}

// WithError records a failed restore.
func (b *ReportBuilder) WithError(err error) *ReportBuilder {
	if err != nil {
		b.report.Error = err.Error()
	}
	return b
}

func (b *ReportBuilder) WithChecks(checks []verify.CheckResult) *ReportBuilder {
	b.report.Checks = checks
	return b
}

// Build finalizes the report and computes the summary.
func (b *ReportBuilder) Build() *Report {
	b.computeSummary()
	return b.report
}

func (b *ReportBuilder) computeSummary() {
	var s Summary
	s.TotalChecks = len(b.report.Checks)
	for _, c := range b.report.Checks {
		if c.Passed {
			s.PassedChecks++
			continue
		}
		s.FailedChecks++
		switch c.Level {
		case verify.LevelCritical:
			s.CriticalFailures++
		case verify.LevelWarning:
			s.WarningFailures++
		}
	}

	s.Success = b.report.Error == "" && s.CriticalFailures == 0
	if res := b.report.Restore; res != nil {
		s.Fresh = res.Fresh
		s.ArchivesRestored = len(res.Archives)
		s.RestoreDuration = res.Duration.String()
	}
	b.report.Summary = s
}

// WriteJSON writes the report into dir and returns the file path.
func WriteJSON(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.json", report.Timestamp.Format("20060102_150405"), report.ID)
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

// LoadReport loads a report from a JSON file.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ReportSummary is a lightweight summary for listing reports.
type ReportSummary struct {
	ID          string
	Timestamp   time.Time
	Success     bool
	Fresh       bool
	LastArchive string
	Path        string
}

// ListReports returns all reports in dir, newest first. Files that cannot
// be parsed are skipped.
func ListReports(dir string) ([]*ReportSummary, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var reports []*ReportSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		r, err := LoadReport(path)
		if err != nil {
			continue
		}

		s := &ReportSummary{
			ID:        r.ID,
			Timestamp: r.Timestamp,
			Success:   r.Summary.Success,
			Fresh:     r.Summary.Fresh,
			Path:      path,
		}
		if r.Restore != nil {
			s.LastArchive = r.Restore.LastArchive
		}
		reports = append(reports, s)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})
	return reports, nil
}
