package models

import (
	"strings"
	"time"
)

// Status is the typed verdict for one rule.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusWarn  Status = "WARN"
	StatusUndef Status = "UNDEF"
	StatusSkip  Status = "SKIP"
)

// Priority orders statuses by how bad they are; higher wins when
// combining multiple assertion outcomes for one rule.
func (s Status) Priority() int {
	switch s {
	case StatusSkip:
		return -1
	case StatusPass:
		return 0
	case StatusWarn:
		return 1
	case StatusFail:
		return 2
	case StatusUndef:
		return 3
	}
	return 0
}

// ParseStatus normalizes a status string, returning ok=false for junk.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPass, StatusFail, StatusWarn, StatusUndef, StatusSkip:
		return s, true
	}
	return "", false
}

// CombineStatus folds a new assertion status into the running verdict.
// SKIP is neutral, otherwise the worse status wins.
func CombineStatus(current, next Status) Status {
	if current == StatusSkip {
		return next
	}
	if next == StatusSkip {
		return current
	}
	if next.Priority() > current.Priority() {
		return next
	}
	return current
}

// CommandResult is the captured outcome of one probe execution.
type CommandResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
}

// Result is the per-rule outcome fed to the scorer and to external
// report renderers. Flat and serializable, no live handles.
type Result struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Module       string            `json:"module"`
	Severity     Severity          `json:"severity"`
	Tags         map[string]string `json:"tags,omitempty"`
	Command      string            `json:"command,omitempty"`
	ExitCode     int               `json:"rc"`
	Output       string            `json:"output"`
	Stderr       string            `json:"stderr,omitempty"`
	Status       Status            `json:"result"`
	Reason       string            `json:"reason"`
	EvidencePath string            `json:"evidence,omitempty"`
	Weight       float64           `json:"weight"`
	Duration     time.Duration     `json:"duration"`
	Cached       bool              `json:"cached,omitempty"`
	TimedOut     bool              `json:"timed_out,omitempty"`
	Ref          string            `json:"ref,omitempty"`
	Remediation  string            `json:"remediation,omitempty"`
}

// FailureRef is one entry in the summary's ranked failure list.
type FailureRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Module   string   `json:"module"`
	Status   Status   `json:"result"`
	Severity Severity `json:"severity"`
	Weight   float64  `json:"weight"`
	Reason   string   `json:"reason"`
}

// Summary aggregates a whole run.
type Summary struct {
	Level          string            `json:"level"`
	Total          int               `json:"checks_total"`
	Counts         map[Status]int    `json:"status_counts"`
	Score          float64           `json:"score"`
	Coverage       float64           `json:"coverage"`
	WeightedPass   float64           `json:"weighted_pass"`
	EligibleWeight float64           `json:"eligible_weight"`
	TotalWeight    float64           `json:"total_weight"`
	TopFailures    []FailureRef      `json:"top_failures"`
	Variables      map[string]string `json:"variables,omitempty"`
	OS             map[string]string `json:"os,omitempty"`
	DurationTotal  time.Duration     `json:"duration_total"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// Report is the full serializable run artifact: ordered results plus
// the aggregate summary.
type Report struct {
	Profile string   `json:"profile"`
	Host    string   `json:"host,omitempty"`
	Results []Result `json:"results"`
	Summary Summary  `json:"summary"`
}
