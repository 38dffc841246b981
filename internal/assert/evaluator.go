// Package assert compares captured probe output against a rule's
// expectation and yields the typed verdict.
package assert

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hostlint/hostlint/internal/models"
	"github.com/hostlint/hostlint/internal/reference"
	"github.com/tidwall/gjson"
)

// Renderer substitutes {{ var }} placeholders lazily, right before a
// pattern or expected value is used.
type Renderer interface {
	Render(template string) string
}

type noopRenderer struct{}

func (noopRenderer) Render(s string) string { return s }

// Evaluator holds what assertions need beyond the rule itself: the
// profile directory for reference files and the variable renderer.
type Evaluator struct {
	BaseDir  string
	Renderer Renderer
}

func NewEvaluator(baseDir string, r Renderer) *Evaluator {
	if r == nil {
		r = noopRenderer{}
	}
	return &Evaluator{BaseDir: baseDir, Renderer: r}
}

// Evaluate maps a command result to a status and reason. Timeouts
// override everything with UNDEF; authoring errors (bad regexp, bad
// jsonpath) also yield UNDEF with a diagnostic instead of crashing;
// the declarative on_fail attribute can downgrade FAIL afterwards.
func (e *Evaluator) Evaluate(rule models.Rule, res models.CommandResult) (models.Status, string) {
	if res.TimedOut {
		return models.StatusUndef, "timeout"
	}
	if res.Err != "" {
		return models.StatusUndef, res.Err
	}
	if !rcAllowed(res.ExitCode, rule.RcOk) {
		return e.applyOnFail(rule, models.StatusFail,
			fmt.Sprintf("rc=%d not in allowed set %v", res.ExitCode, rcOkOrDefault(rule.RcOk)))
	}

	status, reason := e.compare(rule, res)
	return e.applyOnFail(rule, status, reason)
}

func (e *Evaluator) applyOnFail(rule models.Rule, status models.Status, reason string) (models.Status, string) {
	if status == models.StatusFail && rule.OnFail != "" {
		if downgraded, ok := models.ParseStatus(rule.OnFail); ok {
			return downgraded, reason
		}
	}
	return status, reason
}

func (e *Evaluator) compare(rule models.Rule, res models.CommandResult) (models.Status, string) {
	out := strings.TrimSpace(res.Stdout)

	switch rule.AssertType {
	case models.AssertExact:
		expected := e.expectString(rule)
		if out == strings.TrimSpace(expected) {
			return models.StatusPass, "exact match"
		}
		return models.StatusFail, fmt.Sprintf("got %q, expected %q", out, expected)

	case models.AssertContains:
		needle := e.expectString(rule)
		if strings.Contains(out, needle) {
			return models.StatusPass, "contains " + strconv.Quote(needle)
		}
		return models.StatusFail, fmt.Sprintf("%q not found in output", needle)

	case models.AssertNotContains:
		needle := e.expectString(rule)
		if !strings.Contains(out, needle) {
			return models.StatusPass, "does not contain " + strconv.Quote(needle)
		}
		return models.StatusFail, fmt.Sprintf("%q unexpectedly found", needle)

	case models.AssertRegexp:
		re, err := compilePattern(e.expectString(rule))
		if err != nil {
			return models.StatusUndef, "bad regexp: " + err.Error()
		}
		if re.MatchString(out) {
			return models.StatusPass, "regexp matched"
		}
		return models.StatusFail, "regexp did not match"

	case models.AssertNotRegexp:
		re, err := compilePattern(e.expectString(rule))
		if err != nil {
			return models.StatusUndef, "bad regexp: " + err.Error()
		}
		if !re.MatchString(out) {
			return models.StatusPass, "regexp absent"
		}
		return models.StatusFail, "pattern matched unexpectedly"

	case models.AssertExitCode:
		return evalExitCode(e.expectString(rule), res.ExitCode)

	case models.AssertJSONPath:
		return e.evalJSONPath(rule, res.Stdout)

	case models.AssertVersionGTE:
		return evalVersionGTE(e.expectString(rule), out)

	case models.AssertIntLTE:
		return evalIntLTE(e.expectString(rule), out)

	case models.AssertAllowlist:
		return e.evalAllowlist(rule, out)

	case models.AssertDenylist:
		return e.evalDenylist(rule, out)
	}

	return models.StatusUndef, fmt.Sprintf("unsupported assert_type %q", rule.AssertType)
}

func (e *Evaluator) expectString(rule models.Rule) string {
	s, _ := rule.Expect.AsString()
	return e.Renderer.Render(s)
}

// compilePattern applies search semantics: the pattern may match
// anywhere, and ^/$ anchor per line like the profile authors expect.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?m)" + pattern)
}

func rcAllowed(rc int, rcOk []int) bool {
	for _, ok := range rcOkOrDefault(rcOk) {
		if rc == ok {
			return true
		}
	}
	return false
}

func rcOkOrDefault(rcOk []int) []int {
	if len(rcOk) == 0 {
		return []int{0, 1}
	}
	return rcOk
}

func evalExitCode(expect string, rc int) (models.Status, string) {
	expect = strings.TrimSpace(expect)
	if expect == "" {
		if rc == 0 {
			return models.StatusPass, "rc=0"
		}
		return models.StatusFail, fmt.Sprintf("rc=%d", rc)
	}
	if want, err := strconv.Atoi(expect); err == nil {
		if rc == want {
			return models.StatusPass, fmt.Sprintf("rc=%d as expected", rc)
		}
		return models.StatusFail, fmt.Sprintf("rc=%d, expected %d", rc, want)
	}
	re, err := regexp.Compile("^(?:" + expect + ")$")
	if err != nil {
		return models.StatusUndef, "bad rc pattern: " + err.Error()
	}
	if re.MatchString(strconv.Itoa(rc)) {
		return models.StatusPass, "rc matched pattern"
	}
	return models.StatusFail, fmt.Sprintf("rc=%d !~ /%s/", rc, expect)
}

// jsonPathExpect is the structured expect shape for jsonpath rules.
type jsonPathExpect struct {
	Path     string  `yaml:"path"`
	Value    *string `yaml:"value,omitempty"`
	Contains *string `yaml:"contains,omitempty"`
	Exists   *bool   `yaml:"exists,omitempty"`
}

func (e *Evaluator) evalJSONPath(rule models.Rule, stdout string) (models.Status, string) {
	var expect jsonPathExpect
	if err := rule.Expect.Decode(&expect); err != nil || expect.Path == "" {
		return models.StatusUndef, "jsonpath expect must be a mapping with 'path'"
	}
	doc := strings.TrimSpace(stdout)
	if doc == "" {
		doc = "{}"
	}
	if !gjson.Valid(doc) {
		return models.StatusUndef, "output is not valid json"
	}
	result := gjson.Get(doc, e.Renderer.Render(expect.Path))

	switch {
	case expect.Value != nil:
		want := e.Renderer.Render(*expect.Value)
		if result.Exists() && result.String() == want {
			return models.StatusPass, "jsonpath value match"
		}
		return models.StatusFail, fmt.Sprintf("jsonpath %s = %q, expected %q", expect.Path, result.String(), want)
	case expect.Contains != nil:
		want := e.Renderer.Render(*expect.Contains)
		if strings.Contains(result.String(), want) {
			return models.StatusPass, "jsonpath contains"
		}
		return models.StatusFail, fmt.Sprintf("jsonpath %s does not contain %q", expect.Path, want)
	default:
		shouldExist := expect.Exists == nil || *expect.Exists
		if result.Exists() == shouldExist {
			if shouldExist {
				return models.StatusPass, "jsonpath exists"
			}
			return models.StatusPass, "jsonpath absent"
		}
		if shouldExist {
			return models.StatusFail, "jsonpath has no match"
		}
		return models.StatusFail, "jsonpath should be absent"
	}
}

var versionToken = regexp.MustCompile(`\d+(?:\.\d+)*`)

func evalVersionGTE(expect, out string) (models.Status, string) {
	expect = strings.TrimSpace(expect)
	if expect == "" {
		return models.StatusUndef, "version_gte requires an expected version"
	}
	want, err := semver.NewVersion(expect)
	if err != nil {
		return models.StatusUndef, "bad expected version: " + err.Error()
	}
	token := versionToken.FindString(out)
	if token == "" {
		return models.StatusFail, "no version found in output"
	}
	got, err := semver.NewVersion(token)
	if err != nil {
		return models.StatusFail, "unparseable version in output: " + token
	}
	if got.Compare(want) >= 0 {
		return models.StatusPass, fmt.Sprintf("version %s >= %s", token, expect)
	}
	return models.StatusFail, fmt.Sprintf("version %s < %s", token, expect)
}

var intToken = regexp.MustCompile(`-?\d+`)

func evalIntLTE(expect, out string) (models.Status, string) {
	threshold, err := strconv.Atoi(strings.TrimSpace(expect))
	if err != nil {
		return models.StatusUndef, "int_lte requires an integer expect"
	}
	token := intToken.FindString(out)
	if token == "" {
		return models.StatusFail, "no integer found in output"
	}
	actual, _ := strconv.Atoi(token)
	if actual <= threshold {
		return models.StatusPass, fmt.Sprintf("%d <= %d", actual, threshold)
	}
	return models.StatusFail, fmt.Sprintf("%d > %d", actual, threshold)
}

func (e *Evaluator) evalAllowlist(rule models.Rule, out string) (models.Status, string) {
	allowed, err := reference.Resolve(rule.Expect, e.BaseDir, e.Renderer)
	if err != nil {
		return models.StatusUndef, err.Error()
	}
	allowedSet := toSet(allowed)
	var extras []string
	for _, line := range outputLines(out) {
		if !allowedSet[line] {
			extras = append(extras, line)
		}
	}
	if len(extras) > 0 {
		return models.StatusFail, "unexpected entries: " + preview(extras)
	}
	return models.StatusPass, "all entries allowed"
}

func (e *Evaluator) evalDenylist(rule models.Rule, out string) (models.Status, string) {
	denied, err := reference.Resolve(rule.Expect, e.BaseDir, e.Renderer)
	if err != nil {
		return models.StatusUndef, err.Error()
	}
	deniedSet := toSet(denied)
	var hits []string
	for _, line := range outputLines(out) {
		if deniedSet[line] {
			hits = append(hits, line)
		}
	}
	if len(hits) > 0 {
		return models.StatusFail, "denylist hit: " + preview(hits)
	}
	return models.StatusPass, "denylist clean"
}

func outputLines(out string) []string {
	var lines []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}
	return lines
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// preview caps reason lists at five entries so reasons stay readable.
func preview(items []string) string {
	sort.Strings(items)
	if len(items) > 5 {
		return strings.Join(items[:5], ", ") + fmt.Sprintf(" (+%d more)", len(items)-5)
	}
	return strings.Join(items, ", ")
}
