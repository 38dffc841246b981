// Package vars builds the layered variable namespace of a run and
// renders {{ var }} placeholders against the resolved snapshot.
package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hostlint/hostlint/internal/facts"
	"github.com/hostlint/hostlint/internal/models"
)

// ContextError is fatal: a required variable source could not be read.
type ContextError struct {
	Path string
	Err  error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("variable context: cannot read required file %s: %v", e.Path, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// Level is the strictness tier selecting variable overrides.
type Level string

const (
	LevelBaseline Level = "baseline"
	LevelStrict   Level = "strict"
	LevelParanoid Level = "paranoid"
)

func ParseLevel(raw string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(raw)))
	switch l {
	case LevelBaseline, LevelStrict, LevelParanoid:
		return l, nil
	}
	return "", fmt.Errorf("unknown level %q (want baseline, strict or paranoid)", raw)
}

// Options carries the inputs of the context builder. DiscoveredFiles
// replaces the old implicit vars_<level>.env probing: callers list the
// candidate per-level files explicitly so the builder never walks the
// filesystem on its own.
type Options struct {
	Level           Level
	BaseDir         string            // profile directory, anchors relative paths
	Overrides       map[string]string // CLI/env overrides, highest precedence
	DiscoveredFiles []string          // optional level-named env files, applied before overrides
	Facts           facts.Facts
}

// Context is the immutable per-run variable snapshot.
type Context struct {
	Level     Level
	Variables map[string]string
	Facts     facts.Facts

	render map[string]interface{}
}

// Build layers the variable namespace, later layers winning:
// defaults, required files, level entries, optional files, discovered
// level files, caller overrides.
func Build(section models.VarsSection, opts Options) (*Context, error) {
	variables := make(map[string]string)

	for k, v := range section.Defaults {
		variables[k] = v
	}

	pathCtx := map[string]interface{}{"level": string(opts.Level), "LEVEL": string(opts.Level)}

	for _, raw := range section.Files {
		path := resolvePath(renderString(raw, pathCtx), opts.BaseDir)
		layer, err := LoadEnvFile(path)
		if err != nil {
			return nil, &ContextError{Path: path, Err: err}
		}
		merge(variables, layer)
	}

	for k, v := range section.Levels[string(opts.Level)] {
		variables[k] = v
	}

	for _, raw := range section.OptionalFiles {
		path := resolvePath(renderString(raw, pathCtx), opts.BaseDir)
		layer, err := LoadEnvFile(path)
		if err != nil {
			continue // optional sources behave as empty layers
		}
		merge(variables, layer)
	}

	for _, path := range opts.DiscoveredFiles {
		layer, err := LoadEnvFile(resolvePath(path, opts.BaseDir))
		if err != nil {
			continue
		}
		merge(variables, layer)
	}

	for k, v := range opts.Overrides {
		variables[k] = v
	}

	ctx := &Context{
		Level:     opts.Level,
		Variables: variables,
		Facts:     opts.Facts,
	}
	ctx.render = buildRenderContext(variables, opts.Level, opts.Facts)
	return ctx, nil
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// LoadEnvFile reads a KEY=VALUE file. Blank lines and # comments are
// skipped; single or double quotes around values are stripped.
func LoadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		out[key] = value
	}
	return out, nil
}

func resolvePath(value, baseDir string) string {
	if strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, value[2:])
		}
	}
	if filepath.IsAbs(value) || baseDir == "" {
		return value
	}
	candidate := filepath.Join(baseDir, value)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	if _, err := os.Stat(value); err == nil {
		return value
	}
	return candidate
}

// buildRenderContext flattens variables plus facts into the lookup
// namespace for template rendering and condition evaluation. Variable
// names are reachable as written, uppercased and lowercased.
func buildRenderContext(variables map[string]string, level Level, f facts.Facts) map[string]interface{} {
	ctx := make(map[string]interface{})
	for k, v := range variables {
		ctx[k] = v
		ctx[strings.ToUpper(k)] = v
		ctx[strings.ToLower(k)] = v
	}

	varsCopy := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		varsCopy[k] = v
	}
	ctx["vars"] = varsCopy

	ctx["level"] = string(level)
	ctx["LEVEL"] = string(level)

	osCtx := map[string]interface{}{
		"id":          f.OS.ID,
		"version_id":  f.OS.VersionID,
		"name":        f.OS.Name,
		"pretty_name": f.OS.PrettyName,
		"id_like":     toInterfaceSlice(f.OS.IDLike),
	}
	ctx["os"] = osCtx
	ctx["OS_ID"] = f.OS.ID
	ctx["OS_VERSION_ID"] = f.OS.VersionID

	env := make(map[string]interface{})
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	ctx["env"] = env

	return ctx
}

func toInterfaceSlice(items []string) []interface{} {
	out := make([]interface{}, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// Lookup resolves a dotted path (e.g. "os.id_like") in the snapshot.
func (c *Context) Lookup(token string) (interface{}, bool) {
	return lookupPath(c.render, token)
}

// Render substitutes {{ token }} placeholders in a template. Unknown
// tokens stay verbatim so authoring mistakes surface in command output
// instead of silently vanishing.
func (c *Context) Render(template string) string {
	return renderString(template, c.render)
}

// RenderBare substitutes {{ token }} placeholders without shell
// quoting, for expected values and patterns that are compared as text
// rather than handed to a shell.
func (c *Context) RenderBare(template string) string {
	return renderBareString(template, c.render)
}

// RenderContext exposes the flattened namespace for the condition
// evaluator's CEL environment.
func (c *Context) RenderContext() map[string]interface{} { return c.render }
