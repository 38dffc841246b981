package reference

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hostlint/hostlint/internal/models"
)

func expectYAML(t *testing.T, doc string) models.Expectation {
	t.Helper()
	e, err := models.ExpectYAML(doc)
	if err != nil {
		t.Fatalf("bad expect yaml: %v", err)
	}
	return e
}

func TestResolve_InlineList(t *testing.T) {
	got, err := Resolve(expectYAML(t, "[\"tcp:22\", \"tcp:8443\"]"), "", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{"tcp:22", "tcp:8443"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_LegacyFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowed.txt")
	if err := os.WriteFile(path, []byte("# header\ntcp:22\n\ntcp:443\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(expectYAML(t, "allowed.txt"), dir, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{"tcp:22", "tcp:443"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_MissingFileIsError(t *testing.T) {
	_, err := Resolve(expectYAML(t, "missing.txt"), t.TempDir(), nil)
	if err == nil {
		t.Fatal("missing reference file must produce an error")
	}
}

func TestResolve_RemoveBeatsIncludeAtHigherPriority(t *testing.T) {
	doc := `
sources:
  - priority: 0
    values: [a, b, c]
  - priority: 10
    effect: remove
    values: [b]
`
	got, err := Resolve(expectYAML(t, doc), "", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{"a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_HigherIncludeWinsOverLowerRemove(t *testing.T) {
	doc := `
sources:
  - priority: 5
    effect: remove
    values: [x]
  - priority: 10
    values: [x]
`
	got, err := Resolve(expectYAML(t, doc), "", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("Resolve = %v, higher-priority include must win", got)
	}
}

func TestResolve_DeclarationOrderIrrelevant(t *testing.T) {
	a := `
sources:
  - priority: 10
    effect: remove
    values: [b]
  - priority: 0
    values: [a, b]
`
	b := `
sources:
  - priority: 0
    values: [a, b]
  - priority: 10
    effect: remove
    values: [b]
`
	gotA, err := Resolve(expectYAML(t, a), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := Resolve(expectYAML(t, b), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotA, gotB) {
		t.Errorf("source order changed the result: %v vs %v", gotA, gotB)
	}
	if !reflect.DeepEqual(gotA, []string{"a"}) {
		t.Errorf("Resolve = %v, want [a]", gotA)
	}
}

func TestResolve_EqualPriorityLaterWins(t *testing.T) {
	doc := `
sources:
  - priority: 5
    values: [v]
  - priority: 5
    effect: remove
    values: [v]
`
	got, err := Resolve(expectYAML(t, doc), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve = %v, later source at equal priority must win", got)
	}
}

func TestResolve_FileSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.txt"), []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}
	doc := `
sources:
  - priority: 0
    file: base.txt
  - priority: 1
    effect: remove
    values: [a]
`
	got, err := Resolve(expectYAML(t, doc), dir, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Resolve = %v, want [b]", got)
	}
}

func TestParseEffect(t *testing.T) {
	for _, raw := range []string{"", "include", "ALLOW", "add", "keep"} {
		include, err := parseEffect(raw)
		if err != nil || !include {
			t.Errorf("parseEffect(%q) = %v, %v, want include", raw, include, err)
		}
	}
	for _, raw := range []string{"remove", "Exclude", "deny", "drop", "block"} {
		include, err := parseEffect(raw)
		if err != nil || include {
			t.Errorf("parseEffect(%q) = %v, %v, want exclude", raw, include, err)
		}
	}
	if _, err := parseEffect("invert"); err == nil {
		t.Error("parseEffect should reject unknown effects")
	}
}
