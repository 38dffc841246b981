package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/hostlint/hostlint/internal/models"
)

// LocalTransport spawns sh -c subprocesses on the audited machine.
type LocalTransport struct {
	Shell string // defaults to sh
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{Shell: "sh"}
}

func (t *LocalTransport) Execute(ctx context.Context, command string, timeout time.Duration) models.CommandResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := t.Shell
	if shell == "" {
		shell = "sh"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := models.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return timedOutResult(command, timeout, result)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result
		}
		// spawn failure (shell missing, fork error)
		result.ExitCode = -1
		result.Err = err.Error()
		return result
	}
	return result
}

func (t *LocalTransport) Close() error { return nil }
