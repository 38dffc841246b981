// Package reference resolves prioritized allow/deny reference sets for
// set-comparison assertions. Sources are folded in priority order; the
// highest-priority decision per entry wins, so a remove at or above a
// conflicting include always excludes the value regardless of the
// order the sources were declared in.
package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hostlint/hostlint/internal/models"
)

// Source is one contribution to a reference set.
type Source struct {
	Priority int      `yaml:"priority,omitempty"`
	Effect   string   `yaml:"effect,omitempty"` // include (default) or remove
	File     string   `yaml:"file,omitempty"`
	Values   []string `yaml:"values,omitempty"`
}

// spec mirrors the structured YAML form.
type spec struct {
	Sources []Source `yaml:"sources"`
}

type decision struct {
	priority int
	include  bool
}

// Renderer substitutes variables in file paths before they are read.
type Renderer interface {
	Render(template string) string
}

// Resolve turns an expectation into the final sorted set of entries.
// Accepted shapes, most specific first:
//
//	expect: {sources: [{priority: 10, effect: remove, values: [...]}, ...]}
//	expect: [val1, val2, ...]         inline include list, priority 0
//	expect: path/to/list.txt          legacy single include source
//
// The returned error text is meant to surface as an UNDEF reason, not
// to abort the run.
func Resolve(expect models.Expectation, baseDir string, r Renderer) ([]string, error) {
	if expect.IsZero() {
		return nil, fmt.Errorf("empty reference set declaration")
	}

	decisions := make(map[string]decision)

	var s spec
	if err := expect.Decode(&s); err == nil && len(s.Sources) > 0 {
		if err := applySources(decisions, s.Sources, baseDir, r); err != nil {
			return nil, err
		}
		return finalize(decisions), nil
	}

	var inline []string
	if err := expect.Decode(&inline); err == nil && len(inline) > 0 {
		apply(decisions, inline, 0, true)
		return finalize(decisions), nil
	}

	if path, ok := expect.AsString(); ok {
		entries, err := ReadListFile(resolveFile(path, baseDir, r))
		if err != nil {
			return nil, err
		}
		apply(decisions, entries, 0, true)
		return finalize(decisions), nil
	}

	return nil, fmt.Errorf("unsupported reference set shape")
}

func applySources(decisions map[string]decision, sources []Source, baseDir string, r Renderer) error {
	// Stable sort so equal priorities keep declaration order, then a
	// later application at the same priority wins.
	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, src := range ordered {
		include, err := parseEffect(src.Effect)
		if err != nil {
			return err
		}
		entries := append([]string(nil), src.Values...)
		if src.File != "" {
			fileEntries, err := ReadListFile(resolveFile(src.File, baseDir, r))
			if err != nil {
				return err
			}
			entries = append(entries, fileEntries...)
		}
		apply(decisions, entries, src.Priority, include)
	}
	return nil
}

func parseEffect(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "include", "allow", "add", "keep":
		return true, nil
	case "remove", "exclude", "deny", "drop", "block":
		return false, nil
	}
	return false, fmt.Errorf("unknown source effect %q", raw)
}

func apply(decisions map[string]decision, entries []string, priority int, include bool) {
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		current, seen := decisions[entry]
		if !seen || priority >= current.priority {
			decisions[entry] = decision{priority: priority, include: include}
		}
	}
}

func finalize(decisions map[string]decision) []string {
	out := make([]string, 0, len(decisions))
	for entry, d := range decisions {
		if d.include {
			out = append(out, entry)
		}
	}
	sort.Strings(out)
	return out
}

// ReadListFile loads one entry per line, skipping blanks and # comments.
func ReadListFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference file not found: %s", path)
	}
	var entries []string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, nil
}

func resolveFile(path, baseDir string, r Renderer) string {
	if r != nil {
		path = r.Render(path)
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	candidate := filepath.Join(baseDir, path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}
