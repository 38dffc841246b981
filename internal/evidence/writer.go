// Package evidence persists raw command output for audit trails.
// Packaging and redaction of the written files happen downstream.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hostlint/hostlint/internal/models"
)

// Writer drops one <rule_id>.txt per executed rule into a directory.
// A nil *Writer is a no-op sink.
type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func sanitize(id string) string {
	cleaned := unsafeChars.ReplaceAllString(id, "_")
	if cleaned == "" {
		cleaned = "check"
	}
	if len(cleaned) > 80 {
		cleaned = cleaned[:80]
	}
	return cleaned
}

// Write stores the captured output for one rule and returns the file
// path. Collisions get a numeric suffix rather than overwriting.
func (w *Writer) Write(rule models.Rule, res models.CommandResult) (string, error) {
	if w == nil {
		return "", nil
	}
	base := sanitize(rule.ID)
	path := filepath.Join(w.dir, base+".txt")
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(w.dir, fmt.Sprintf("%s_%d.txt", base, i))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Check: %s\n", rule.ID)
	fmt.Fprintf(&b, "# Module: %s\n", rule.ModuleOrDefault())
	fmt.Fprintf(&b, "# Command: %s\n", rule.Command)
	fmt.Fprintf(&b, "# Return code: %d\n\n", res.ExitCode)
	if res.Stdout != "" {
		b.WriteString("[stdout]\n")
		b.WriteString(strings.TrimRight(res.Stdout, "\n") + "\n")
	}
	if res.Stderr != "" {
		b.WriteString("\n[stderr]\n")
		b.WriteString(strings.TrimRight(res.Stderr, "\n") + "\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
