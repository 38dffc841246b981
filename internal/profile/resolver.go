// Package profile loads layered YAML policy documents and flattens
// extends chains into one validated rule set.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hostlint/hostlint/internal/models"
	"gopkg.in/yaml.v3"
)

// ProfileError is fatal: the profile tree cannot be resolved. It
// carries enough context to name the offending file and, for cycles
// and duplicate ids, every implicated element.
type ProfileError struct {
	Path       string
	Cycle      []string
	Duplicates []string
	Err        error
}

func (e *ProfileError) Error() string {
	switch {
	case len(e.Cycle) > 0:
		return fmt.Sprintf("profile %s: extends cycle: %s", e.Path, strings.Join(e.Cycle, " -> "))
	case len(e.Duplicates) > 0:
		return fmt.Sprintf("profile %s: duplicate rule ids: %s", e.Path, strings.Join(e.Duplicates, ", "))
	case e.Err != nil:
		return fmt.Sprintf("profile %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("profile %s: resolution failed", e.Path)
}

func (e *ProfileError) Unwrap() error { return e.Err }

// Load reads and decodes a single profile document without following
// its extends chain.
func Load(path string) (*models.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ProfileError{Path: path, Err: err}
	}
	var p models.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &ProfileError{Path: path, Err: fmt.Errorf("malformed yaml: %w", err)}
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &p, nil
}

// Resolve loads a profile and merges its transitive extends chain into
// one logical document. Base profiles load first so the extending
// profile's vars and meta override theirs; checks append in traversal
// order. Cycles and duplicate rule ids abort resolution.
func Resolve(path string) (*models.Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	merged, err := resolve(abs, nil)
	if err != nil {
		return nil, err
	}
	if dups := duplicateIDs(merged.Checks); len(dups) > 0 {
		return nil, &ProfileError{Path: path, Duplicates: dups}
	}
	return merged, nil
}

func resolve(path string, chain []string) (*models.Profile, error) {
	for _, seen := range chain {
		if seen == path {
			return nil, &ProfileError{Path: path, Cycle: append(append([]string{}, chain...), path)}
		}
	}
	chain = append(chain, path)

	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	if len(p.Extends) == 0 {
		return p, nil
	}

	baseDir := filepath.Dir(path)
	merged := &models.Profile{}
	for _, ref := range p.Extends {
		refPath := ref
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(baseDir, refPath)
		}
		base, err := resolve(refPath, chain)
		if err != nil {
			return nil, err
		}
		mergeInto(merged, base)
	}
	overlay := *p
	overlay.Extends = nil
	mergeInto(merged, &overlay)
	return merged, nil
}

// mergeInto overlays src onto dst: checks append, vars and meta update
// key-wise, scalar fields replace when set.
func mergeInto(dst, src *models.Profile) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.SchemaVersion != "" {
		dst.SchemaVersion = src.SchemaVersion
	}
	dst.Checks = append(dst.Checks, src.Checks...)

	mergeStringMap(&dst.Meta, src.Meta)
	mergeStringMap(&dst.Vars.Defaults, src.Vars.Defaults)
	dst.Vars.Files = append(dst.Vars.Files, src.Vars.Files...)
	dst.Vars.OptionalFiles = append(dst.Vars.OptionalFiles, src.Vars.OptionalFiles...)
	if len(src.Vars.Levels) > 0 {
		if dst.Vars.Levels == nil {
			dst.Vars.Levels = make(map[string]map[string]string)
		}
		for level, entries := range src.Vars.Levels {
			if dst.Vars.Levels[level] == nil {
				dst.Vars.Levels[level] = make(map[string]string)
			}
			for k, v := range entries {
				dst.Vars.Levels[level][k] = v
			}
		}
	}
}

func mergeStringMap(dst *map[string]string, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

func duplicateIDs(checks []models.Rule) []string {
	seen := make(map[string]bool)
	dup := make(map[string]bool)
	for _, c := range checks {
		if seen[c.ID] {
			dup[c.ID] = true
		}
		seen[c.ID] = true
	}
	out := make([]string, 0, len(dup))
	for id := range dup {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
