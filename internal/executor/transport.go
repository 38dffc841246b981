// Package executor runs probe commands against the audited target.
// The engine above it is transport-agnostic: the same scheduling,
// caching and assertion logic drives a local shell or an SSH session.
package executor

import (
	"context"
	"time"

	"github.com/hostlint/hostlint/internal/models"
)

// Transport executes fully-substituted command strings. A timeout
// never surfaces as an error: it yields a sentinel result with
// TimedOut set, which the assertion evaluator maps to UNDEF.
type Transport interface {
	// Execute runs one command and captures exit code, stdout, stderr
	// and wall-clock duration.
	Execute(ctx context.Context, command string, timeout time.Duration) models.CommandResult

	// Close releases any pooled connections.
	Close() error
}

// DefaultTimeout bounds rules that don't declare their own.
const DefaultTimeout = 10 * time.Second

func timedOutResult(command string, timeout time.Duration, partial models.CommandResult) models.CommandResult {
	partial.TimedOut = true
	partial.ExitCode = 124
	partial.Err = "command timed out after " + timeout.String()
	return partial
}
