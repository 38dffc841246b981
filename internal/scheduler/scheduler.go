// Package scheduler drives every applicable rule through condition
// evaluation, command execution and assertion on a bounded worker
// pool, collecting one result per rule.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hostlint/hostlint/internal/assert"
	"github.com/hostlint/hostlint/internal/condition"
	"github.com/hostlint/hostlint/internal/evidence"
	"github.com/hostlint/hostlint/internal/executor"
	"github.com/hostlint/hostlint/internal/models"
	"github.com/hostlint/hostlint/internal/observability/logging"
	"github.com/hostlint/hostlint/internal/vars"
)

// Options tune one run.
type Options struct {
	Workers        int               // 0 means available parallelism
	Modules        []string          // keep only these module tags
	CheckIDs       []string          // keep only these rule ids
	TagFilters     map[string]string // rule must carry every tag; empty value matches any
	DefaultTimeout time.Duration
}

// Scheduler owns the per-run pipeline collaborators. The variable
// context and rule set are read-only for the duration of a run; the
// fact cache is the only shared mutable state.
type Scheduler struct {
	transport  executor.Transport
	cache      *executor.FactCache
	conditions *condition.Evaluator
	asserts    *assert.Evaluator
	evidence   *evidence.Writer
}

func New(transport executor.Transport, conditions *condition.Evaluator, asserts *assert.Evaluator, ev *evidence.Writer) *Scheduler {
	return &Scheduler{
		transport:  transport,
		cache:      executor.NewFactCache(),
		conditions: conditions,
		asserts:    asserts,
		evidence:   ev,
	}
}

// Run evaluates the rule set and returns results in rule order.
// Filtered-out rules never enter the state machine and produce no
// result at all; inapplicable rules produce SKIP. A failure inside
// one rule is contained to that rule's UNDEF result.
func (s *Scheduler) Run(ctx context.Context, rules []models.Rule, vctx *vars.Context, opts Options) []models.Result {
	log := logging.From(ctx)

	type slot struct {
		idx  int
		rule models.Rule
	}
	var scheduled []slot
	results := make([]*models.Result, len(rules))

	for i, rule := range rules {
		if !selected(rule, opts) {
			continue
		}
		ok, reason, err := s.conditions.Applies(rule.When)
		if err != nil {
			log.Warn("scheduler", "malformed when clause, skipping rule",
				"rule", rule.ID, "error", err.Error())
		}
		if !ok {
			res := s.skipResult(rule, reason)
			results[i] = &res
			continue
		}
		scheduled = append(scheduled, slot{idx: i, rule: rule})
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = min(32, runtime.NumCPU()+2)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		// fall back to serial execution rather than failing the run
		for _, sl := range scheduled {
			res := s.executeRule(ctx, sl.rule, vctx, opts)
			results[sl.idx] = &res
		}
		return collect(results)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, sl := range scheduled {
		sl := sl
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					res := s.undefResult(sl.rule, fmt.Sprintf("internal error: %v", r))
					results[sl.idx] = &res
				}
			}()
			res := s.executeRule(ctx, sl.rule, vctx, opts)
			results[sl.idx] = &res
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			res := s.undefResult(sl.rule, "scheduler: "+err.Error())
			results[sl.idx] = &res
		}
	}
	wg.Wait()

	return collect(results)
}

func collect(results []*models.Result) []models.Result {
	out := make([]models.Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

func (s *Scheduler) executeRule(ctx context.Context, rule models.Rule, vctx *vars.Context, opts Options) models.Result {
	if ctx.Err() != nil {
		return s.undefResult(rule, "run aborted")
	}

	command := vctx.Render(rule.Command)
	timeout := opts.DefaultTimeout
	if rule.Timeout > 0 {
		timeout = time.Duration(rule.Timeout) * time.Second
	}
	if timeout <= 0 {
		timeout = executor.DefaultTimeout
	}

	var cmdRes models.CommandResult
	if rule.Cache {
		key := fmt.Sprintf("%s\x00%s", command, timeout)
		cmdRes = s.cache.GetOrRun(key, func() models.CommandResult {
			return s.transport.Execute(ctx, command, timeout)
		})
	} else {
		cmdRes = s.transport.Execute(ctx, command, timeout)
	}

	status, reason := s.asserts.Evaluate(rule, cmdRes)

	evidencePath := ""
	if s.evidence != nil {
		if path, err := s.evidence.Write(rule, cmdRes); err == nil {
			evidencePath = path
		} else {
			logging.From(ctx).Warn("scheduler", "evidence write failed",
				"rule", rule.ID, "error", err.Error())
		}
	}

	output := cmdRes.Stdout
	if output == "" {
		output = strings.TrimSpace(cmdRes.Stderr)
	}

	return models.Result{
		ID:           rule.ID,
		Name:         rule.Name,
		Module:       rule.ModuleOrDefault(),
		Severity:     rule.Severity,
		Tags:         rule.Tags,
		Command:      command,
		ExitCode:     cmdRes.ExitCode,
		Output:       truncate(output),
		Stderr:       cmdRes.Stderr,
		Status:       status,
		Reason:       reason,
		EvidencePath: evidencePath,
		Weight:       rule.Weight(),
		Duration:     cmdRes.Duration,
		Cached:       cmdRes.Cached,
		TimedOut:     cmdRes.TimedOut,
		Ref:          rule.Ref,
		Remediation:  rule.Remediation,
	}
}

func (s *Scheduler) skipResult(rule models.Rule, reason string) models.Result {
	if reason == "" {
		reason = "skipped"
	}
	return models.Result{
		ID:          rule.ID,
		Name:        rule.Name,
		Module:      rule.ModuleOrDefault(),
		Severity:    rule.Severity,
		Tags:        rule.Tags,
		Command:     rule.Command,
		Status:      models.StatusSkip,
		Reason:      reason,
		Weight:      rule.Weight(),
		Ref:         rule.Ref,
		Remediation: rule.Remediation,
	}
}

func (s *Scheduler) undefResult(rule models.Rule, reason string) models.Result {
	res := s.skipResult(rule, reason)
	res.Status = models.StatusUndef
	return res
}

// UnreachableResults marks every selected rule UNDEF, used when the
// remote transport cannot connect at all.
func UnreachableResults(rules []models.Rule, opts Options, reason string) []models.Result {
	s := &Scheduler{}
	var out []models.Result
	for _, rule := range rules {
		if !selected(rule, opts) {
			continue
		}
		out = append(out, s.undefResult(rule, reason))
	}
	return out
}

func selected(rule models.Rule, opts Options) bool {
	if len(opts.Modules) > 0 && !containsFold(opts.Modules, rule.ModuleOrDefault()) {
		return false
	}
	if len(opts.CheckIDs) > 0 && !containsFold(opts.CheckIDs, rule.ID) {
		return false
	}
	for key, want := range opts.TagFilters {
		got, ok := rule.Tags[key]
		if !ok {
			return false
		}
		if want != "" && !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, item := range haystack {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}

const maxOutputBytes = 64 * 1024

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n…(truncated)"
}
