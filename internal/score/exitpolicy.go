package score

import (
	"fmt"
	"strings"

	"github.com/hostlint/hostlint/internal/models"
)

// FailLevel is the severity threshold above which FAIL results turn
// into a non-zero process exit.
type FailLevel string

const (
	FailNone   FailLevel = "none"
	FailLow    FailLevel = "low"
	FailMedium FailLevel = "medium"
	FailHigh   FailLevel = "high"
)

func ParseFailLevel(raw string) (FailLevel, error) {
	l := FailLevel(strings.ToLower(strings.TrimSpace(raw)))
	switch l {
	case FailNone, FailLow, FailMedium, FailHigh:
		return l, nil
	}
	return "", fmt.Errorf("unknown fail level %q (want none, low, medium or high)", raw)
}

func (l FailLevel) threshold() int {
	switch l {
	case FailLow:
		return models.SeverityLow.Rank()
	case FailMedium:
		return models.SeverityMedium.Rank()
	case FailHigh:
		return models.SeverityHigh.Rank()
	}
	return -1 // none: never fail
}

// ExitCode implements the exit-decision policy over a result list:
// any UNDEF with failOnUndef set, or any FAIL at or above the
// threshold severity, yields exit code 2; otherwise 0.
func ExitCode(results []models.Result, level FailLevel, failOnUndef bool) int {
	if failOnUndef {
		for _, res := range results {
			if res.Status == models.StatusUndef {
				return 2
			}
		}
	}
	threshold := level.threshold()
	if threshold < 0 {
		return 0
	}
	for _, res := range results {
		if res.Status == models.StatusFail && res.Severity.Rank() >= threshold {
			return 2
		}
	}
	return 0
}
