// Package condition decides rule applicability from `when` predicate
// trees evaluated against host facts and the variable context.
package condition

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/hostlint/hostlint/internal/models"
	"github.com/hostlint/hostlint/internal/vars"
)

// Evaluator compiles and evaluates when clauses. A malformed clause
// never fails the run: it evaluates to false and the diagnostic is
// returned for logging.
type Evaluator struct {
	env *cel.Env
	ctx *vars.Context

	mu       sync.Mutex
	programs map[string]cel.Program // compiled expressions, keyed by source
}

func NewEvaluator(ctx *vars.Context) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("level", cel.StringType),
		cel.Variable("os", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("vars", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Evaluator{env: env, ctx: ctx, programs: make(map[string]cel.Program)}, nil
}

// Applies reports whether the rule should run. An absent clause means
// always applicable. The second return value is a human-readable skip
// reason, the third a diagnostic for malformed clauses.
func (e *Evaluator) Applies(when *models.WhenClause) (bool, string, error) {
	if when == nil {
		return true, "", nil
	}
	return e.evaluate(*when)
}

func (e *Evaluator) evaluate(clause models.WhenClause) (bool, string, error) {
	if clause.Expr != "" {
		return e.evaluateExpr(clause.Expr)
	}

	if len(clause.Any) > 0 {
		var firstReason string
		for _, sub := range clause.Any {
			ok, reason, err := e.evaluate(sub)
			if err != nil {
				return false, reason, err
			}
			if ok {
				return true, "", nil
			}
			if firstReason == "" {
				firstReason = reason
			}
		}
		return false, "when: no branch matched ("+firstReason+")", nil
	}

	for _, sub := range clause.All {
		ok, reason, err := e.evaluate(sub)
		if err != nil || !ok {
			return false, reason, err
		}
	}

	for key, expected := range clause.Equals {
		actual, _ := e.ctx.Lookup(key)
		if !e.match(actual, expected) {
			return false, "when:" + key, nil
		}
	}

	return true, "", nil
}

func (e *Evaluator) evaluateExpr(expr string) (bool, string, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, "when: expression error", err
	}

	render := e.ctx.RenderContext()
	out, _, err := prg.Eval(map[string]interface{}{
		"level": string(e.ctx.Level),
		"os":    render["os"],
		"vars":  e.ctx.Variables,
	})
	if err != nil {
		return false, "when: expression error", fmt.Errorf("eval %q: %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, "when: expression error", fmt.Errorf("expression %q must return bool, got %T", expr, out.Value())
	}
	if !result {
		return false, "when: expression false", nil
	}
	return true, "", nil
}

// program returns the compiled form of an expression, compiling it on
// first use. Rules sharing an expression share one program.
func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.programs[expr]; ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	e.programs[expr] = prg
	return prg, nil
}

// match compares an actual fact value against the expected predicate.
// Expected values may carry {{ var }} placeholders and are rendered
// against the variable snapshot before comparison. Scalars compare
// case-insensitively; an actual list matches when any element matches;
// a ~pattern or {regexp: ...} expected side searches.
func (e *Evaluator) match(actual interface{}, expected models.MatchValue) bool {
	if expected.Regexp != "" {
		return regexMatch(e.ctx.RenderBare(expected.Regexp), actual)
	}
	for _, want := range expected.Values {
		if strings.HasPrefix(want, "~") {
			if regexMatch(e.ctx.RenderBare(want[1:]), actual) {
				return true
			}
			continue
		}
		if equalsFold(actual, e.ctx.RenderBare(want)) {
			return true
		}
	}
	return false
}

func regexMatch(pattern string, actual interface{}) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	if items, ok := actual.([]interface{}); ok {
		for _, item := range items {
			if re.MatchString(fmt.Sprint(item)) {
				return true
			}
		}
		return false
	}
	if actual == nil {
		return false
	}
	return re.MatchString(fmt.Sprint(actual))
}

func equalsFold(actual interface{}, want string) bool {
	if items, ok := actual.([]interface{}); ok {
		for _, item := range items {
			if strings.EqualFold(fmt.Sprint(item), want) {
				return true
			}
		}
		return false
	}
	if actual == nil {
		return want == ""
	}
	return strings.EqualFold(fmt.Sprint(actual), want)
}
