package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity classifies how much a failing rule matters.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight returns the scoring weight for a severity. Unknown severities
// weigh the same as low so a sloppy profile still scores.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Rank orders severities for failure sorting and fail-level thresholds.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

// AssertType selects the comparison strategy for a rule.
type AssertType string

const (
	AssertExact       AssertType = "exact"
	AssertContains    AssertType = "contains"
	AssertNotContains AssertType = "not_contains"
	AssertRegexp      AssertType = "regexp"
	AssertNotRegexp   AssertType = "not_regexp"
	AssertExitCode    AssertType = "exit_code"
	AssertJSONPath    AssertType = "jsonpath"
	AssertVersionGTE  AssertType = "version_gte"
	AssertIntLTE      AssertType = "int_lte"
	AssertAllowlist   AssertType = "set_allowlist"
	AssertDenylist    AssertType = "set_denylist"
)

// AssertTypes lists every supported comparison strategy.
var AssertTypes = []AssertType{
	AssertExact, AssertContains, AssertNotContains,
	AssertRegexp, AssertNotRegexp, AssertExitCode,
	AssertJSONPath, AssertVersionGTE, AssertIntLTE,
	AssertAllowlist, AssertDenylist,
}

func ParseAssertType(raw string) (AssertType, error) {
	at := AssertType(strings.ToLower(strings.TrimSpace(raw)))
	// legacy aliases from older profiles
	switch at {
	case "allowlist", "allowlist_file", "custom_allowlist_file":
		return AssertAllowlist, nil
	case "denylist", "custom_denylist_file":
		return AssertDenylist, nil
	}
	for _, known := range AssertTypes {
		if at == known {
			return at, nil
		}
	}
	return "", fmt.Errorf("unknown assert_type %q", raw)
}

// Profile is one YAML policy document, possibly extending others.
type Profile struct {
	SchemaVersion string            `yaml:"schema_version,omitempty"`
	Name          string            `yaml:"profile_name,omitempty"`
	Description   string            `yaml:"description,omitempty"`
	Extends       StringList        `yaml:"extends,omitempty"`
	Vars          VarsSection       `yaml:"vars,omitempty"`
	Meta          map[string]string `yaml:"meta,omitempty"`
	Checks        []Rule            `yaml:"checks"`
}

// VarsSection declares the layered variable namespace of a profile.
type VarsSection struct {
	Defaults      map[string]string            `yaml:"defaults,omitempty"`
	Files         []string                     `yaml:"files,omitempty"`
	OptionalFiles []string                     `yaml:"optional_files,omitempty"`
	Levels        map[string]map[string]string `yaml:"levels,omitempty"`
}

// Rule is one atomic compliance check. Immutable after profile resolution.
type Rule struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name,omitempty"`
	Module      string            `yaml:"module,omitempty"`
	Command     string            `yaml:"command,omitempty"`
	Expect      Expectation       `yaml:"expect,omitempty"`
	AssertType  AssertType        `yaml:"assert_type,omitempty"`
	Severity    Severity          `yaml:"severity,omitempty"`
	When        *WhenClause       `yaml:"when,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Remediation string            `yaml:"remediation,omitempty"`
	Ref         string            `yaml:"ref,omitempty"`
	Evidence    string            `yaml:"evidence,omitempty"`
	Timeout     int               `yaml:"timeout,omitempty"` // seconds, 0 means default
	RcOk        []int             `yaml:"rc_ok,omitempty"`
	Cache       bool              `yaml:"cache,omitempty"`
	OnFail      string            `yaml:"on_fail,omitempty"` // e.g. WARN to downgrade failures
}

// Weight is derived from severity; rules never carry explicit weights.
func (r Rule) Weight() float64 { return r.Severity.Weight() }

// ModuleOrDefault returns the category tag, defaulting to "core".
func (r Rule) ModuleOrDefault() string {
	if r.Module == "" {
		return "core"
	}
	return r.Module
}

// StringList accepts either a YAML scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	}
	return fmt.Errorf("expected string or list, got yaml kind %d", value.Kind)
}

// Expectation holds a rule's expected value. The shape depends on the
// assert type: a plain string for text comparisons, a mapping for
// jsonpath, a source list for allow/deny sets. The raw node is kept so
// each evaluator can decode the shape it understands.
type Expectation struct {
	node *yaml.Node
}

func (e *Expectation) UnmarshalYAML(value *yaml.Node) error {
	e.node = value
	return nil
}

func (e Expectation) MarshalYAML() (interface{}, error) {
	if e.node == nil {
		return nil, nil
	}
	return e.node, nil
}

// IsZero reports whether no expect value was set.
func (e Expectation) IsZero() bool {
	return e.node == nil || e.node.Tag == "!!null"
}

// AsString decodes a scalar expectation. Non-scalars report false.
func (e Expectation) AsString() (string, bool) {
	if e.node == nil || e.node.Kind != yaml.ScalarNode {
		return "", false
	}
	var s string
	if err := e.node.Decode(&s); err != nil {
		return "", false
	}
	return s, true
}

// Decode unmarshals the expectation into an arbitrary shape.
func (e Expectation) Decode(out interface{}) error {
	if e.node == nil {
		return fmt.Errorf("empty expect value")
	}
	return e.node.Decode(out)
}

// ExpectString builds a scalar expectation, mostly for tests.
func ExpectString(s string) Expectation {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	return Expectation{node: n}
}

// ExpectYAML parses a YAML fragment into an expectation, for tests and
// programmatic rule construction.
func ExpectYAML(doc string) (Expectation, error) {
	var e Expectation
	if err := yaml.Unmarshal([]byte(doc), &e); err != nil {
		return Expectation{}, err
	}
	return e, nil
}
