package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hostlint/hostlint/internal/models"
)

func TestWrite_FileContents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	rule := models.Rule{ID: "ssh-root-login", Module: "ssh", Command: "sshd -T | grep permitrootlogin"}
	path, err := w.Write(rule, models.CommandResult{ExitCode: 0, Stdout: "permitrootlogin no\n", Stderr: "warn\n"})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "ssh-root-login.txt") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{
		"# Check: ssh-root-login",
		"# Module: ssh",
		"# Command: sshd -T | grep permitrootlogin",
		"# Return code: 0",
		"[stdout]\npermitrootlogin no\n",
		"[stderr]\nwarn\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("evidence missing %q:\n%s", want, content)
		}
	}
}

func TestWrite_EmptyStreamsOmitted(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path, err := w.Write(models.Rule{ID: "quiet"}, models.CommandResult{ExitCode: 1})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "[stdout]") || strings.Contains(string(data), "[stderr]") {
		t.Errorf("empty streams should be omitted:\n%s", data)
	}
}

func TestWrite_CollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	rule := models.Rule{ID: "dup"}
	first, _ := w.Write(rule, models.CommandResult{Stdout: "one"})
	second, err := w.Write(rule, models.CommandResult{Stdout: "two"})
	if err != nil {
		t.Fatal(err)
	}
	if second != filepath.Join(dir, "dup_1.txt") {
		t.Errorf("second path = %s, want suffixed", second)
	}
	data, _ := os.ReadFile(first)
	if !strings.Contains(string(data), "one") {
		t.Error("first evidence file was overwritten")
	}
}

func TestWrite_SanitizesRuleID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	path, err := w.Write(models.Rule{ID: "../etc/pass wd"}, models.CommandResult{})
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Base(path)
	if strings.ContainsAny(base, "/ ") || !strings.HasPrefix(filepath.Clean(path), dir) {
		t.Errorf("unsafe evidence path %s", path)
	}
}

func TestNilWriter(t *testing.T) {
	w, err := NewWriter("")
	if err != nil {
		t.Fatal(err)
	}
	if w != nil {
		t.Fatal("empty dir should yield nil writer")
	}
	if path, err := w.Write(models.Rule{ID: "x"}, models.CommandResult{}); err != nil || path != "" {
		t.Errorf("nil writer Write = %q, %v", path, err)
	}
}
