package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hostlint/hostlint/internal/models"
)

// colors
const (
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// FormatTextReport renders a run for humans: verdict line, score,
// status counts, then every non-PASS result grouped by status.
func FormatTextReport(report models.Report) string {
	var sb strings.Builder
	s := report.Summary

	verdict := "PASS"
	color := colorGreen
	if s.Counts[models.StatusFail] > 0 || s.Counts[models.StatusUndef] > 0 {
		verdict = "FAIL"
		color = colorRed
	} else if s.Counts[models.StatusWarn] > 0 {
		verdict = "WARN"
		color = colorYellow
	}

	sb.WriteString(fmt.Sprintf("%shostlint audit: %s%s (profile=%s, level=%s)\n",
		color, verdict, colorReset, report.Profile, s.Level))
	if report.Host != "" {
		sb.WriteString(fmt.Sprintf("Host: %s\n", report.Host))
	}
	if id := s.OS["pretty_name"]; id != "" {
		sb.WriteString(fmt.Sprintf("OS: %s\n", id))
	}
	sb.WriteString(fmt.Sprintf("Score: %.1f%%  Coverage: %.1f%%\n", s.Score, s.Coverage*100))
	sb.WriteString(fmt.Sprintf("Checks: %d total, %d pass, %d fail, %d warn, %d undef, %d skip\n\n",
		s.Total,
		s.Counts[models.StatusPass],
		s.Counts[models.StatusFail],
		s.Counts[models.StatusWarn],
		s.Counts[models.StatusUndef],
		s.Counts[models.StatusSkip]))

	writeGroup(&sb, report.Results, models.StatusFail, colorRed)
	writeGroup(&sb, report.Results, models.StatusUndef, colorYellow)
	writeGroup(&sb, report.Results, models.StatusWarn, colorYellow)

	if verdict == "PASS" {
		sb.WriteString(fmt.Sprintf("%s✓ Host is compliant%s\n", colorGreen, colorReset))
	}
	return sb.String()
}

func writeGroup(sb *strings.Builder, results []models.Result, status models.Status, color string) {
	var group []models.Result
	for _, res := range results {
		if res.Status == status {
			group = append(group, res)
		}
	}
	if len(group) == 0 {
		return
	}

	sb.WriteString(fmt.Sprintf("%s%s (%d)%s\n", color, status, len(group), colorReset))
	for _, res := range group {
		name := res.Name
		if name == "" {
			name = res.ID
		}
		sb.WriteString(fmt.Sprintf("%s- [%s/%s] %s%s\n", color, res.Module, res.Severity, name, colorReset))
		if res.Reason != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", res.Reason))
		}
		if res.Remediation != "" {
			sb.WriteString(fmt.Sprintf("    fix: %s\n", res.Remediation))
		}
	}
	sb.WriteString("\n")
}

// FormatJSONReport raw json
func FormatJSONReport(report models.Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}
