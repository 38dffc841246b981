package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hostlint/hostlint/internal/assert"
	"github.com/hostlint/hostlint/internal/condition"
	"github.com/hostlint/hostlint/internal/facts"
	"github.com/hostlint/hostlint/internal/models"
	"github.com/hostlint/hostlint/internal/vars"
	"gopkg.in/yaml.v3"
)

// fakeTransport answers probe commands from a canned table.
type fakeTransport struct {
	mu      sync.Mutex
	calls   int32
	answers map[string]models.CommandResult
	delay   time.Duration
}

func (f *fakeTransport) Execute(ctx context.Context, command string, timeout time.Duration) models.CommandResult {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	res, ok := f.answers[command]
	f.mu.Unlock()
	if !ok {
		return models.CommandResult{ExitCode: 127, Stderr: "not found: " + command}
	}
	return res
}

func (f *fakeTransport) Close() error { return nil }

func testVarsContext(t *testing.T) *vars.Context {
	t.Helper()
	ctx, err := vars.Build(models.VarsSection{
		Defaults: map[string]string{"SSH_PORT": "22"},
	}, vars.Options{
		Level: vars.LevelBaseline,
		Facts: facts.Facts{OS: facts.OSInfo{ID: "debian"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ctx
}

func newTestScheduler(t *testing.T, transport *fakeTransport) (*Scheduler, *vars.Context) {
	t.Helper()
	vctx := testVarsContext(t)
	conditions, err := condition.NewEvaluator(vctx)
	if err != nil {
		t.Fatal(err)
	}
	asserts := assert.NewEvaluator("", vctx)
	return New(transport, conditions, asserts, nil), vctx
}

func passingRule(id, command string) models.Rule {
	return models.Rule{
		ID:         id,
		Command:    command,
		AssertType: models.AssertExact,
		Expect:     models.ExpectString("ok"),
		Severity:   models.SeverityLow,
	}
}

func TestRun_ResultsInRuleOrder(t *testing.T) {
	transport := &fakeTransport{
		answers: map[string]models.CommandResult{
			"a": {Stdout: "ok"},
			"b": {Stdout: "ok"},
			"c": {Stdout: "nope"},
		},
		delay: 5 * time.Millisecond,
	}
	sched, vctx := newTestScheduler(t, transport)

	rules := []models.Rule{passingRule("r-a", "a"), passingRule("r-b", "b"), passingRule("r-c", "c")}
	results := sched.Run(context.Background(), rules, vctx, Options{Workers: 3})

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, want := range []string{"r-a", "r-b", "r-c"} {
		if results[i].ID != want {
			t.Errorf("result %d = %s, want %s", i, results[i].ID, want)
		}
	}
	if results[0].Status != models.StatusPass || results[2].Status != models.StatusFail {
		t.Errorf("statuses = %s, %s, %s", results[0].Status, results[1].Status, results[2].Status)
	}
}

func TestRun_WhenClauseSkips(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{"a": {Stdout: "ok"}}}
	sched, vctx := newTestScheduler(t, transport)

	gated := passingRule("gated", "a")
	var holder struct {
		When *models.WhenClause `yaml:"when"`
	}
	if err := yaml.Unmarshal([]byte("when:\n  os.id: centos\n"), &holder); err != nil {
		t.Fatal(err)
	}
	gated.When = holder.When

	results := sched.Run(context.Background(), []models.Rule{gated, passingRule("open", "a")}, vctx, Options{})
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Status != models.StatusSkip {
		t.Errorf("gated rule = %s, want SKIP", results[0].Status)
	}
	if results[0].Reason == "" {
		t.Error("skip must carry a reason")
	}
	if results[1].Status != models.StatusPass {
		t.Errorf("open rule = %s", results[1].Status)
	}
	if atomic.LoadInt32(&transport.calls) != 1 {
		t.Errorf("transport calls = %d, skipped rules must not execute", transport.calls)
	}
}

func TestRun_Filters(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{"a": {Stdout: "ok"}}}
	sched, vctx := newTestScheduler(t, transport)

	sshRule := passingRule("ssh-1", "a")
	sshRule.Module = "ssh"
	pamRule := passingRule("pam-1", "a")
	pamRule.Module = "pam"
	tagged := passingRule("tagged", "a")
	tagged.Tags = map[string]string{"pci": "4.0"}

	rules := []models.Rule{sshRule, pamRule, tagged}

	results := sched.Run(context.Background(), rules, vctx, Options{Modules: []string{"SSH"}})
	if len(results) != 1 || results[0].ID != "ssh-1" {
		t.Errorf("module filter results = %+v", ids(results))
	}

	results = sched.Run(context.Background(), rules, vctx, Options{CheckIDs: []string{"pam-1"}})
	if len(results) != 1 || results[0].ID != "pam-1" {
		t.Errorf("id filter results = %+v", ids(results))
	}

	results = sched.Run(context.Background(), rules, vctx, Options{TagFilters: map[string]string{"pci": ""}})
	if len(results) != 1 || results[0].ID != "tagged" {
		t.Errorf("tag filter results = %+v", ids(results))
	}

	results = sched.Run(context.Background(), rules, vctx, Options{TagFilters: map[string]string{"pci": "3.2"}})
	if len(results) != 0 {
		t.Errorf("mismatched tag value should exclude, got %+v", ids(results))
	}
}

func ids(results []models.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestRun_CommandRendered(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{
		"ss -lnt | grep :22": {Stdout: "ok"},
	}}
	sched, vctx := newTestScheduler(t, transport)

	rule := passingRule("render", "ss -lnt | grep :{{ SSH_PORT }}")
	results := sched.Run(context.Background(), []models.Rule{rule}, vctx, Options{})
	if results[0].Status != models.StatusPass {
		t.Errorf("status = %s, command template was not rendered (%q)", results[0].Status, results[0].Command)
	}
	if results[0].Command != "ss -lnt | grep :22" {
		t.Errorf("command = %q", results[0].Command)
	}
}

func TestRun_CachedCommandRunsOnce(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{"shared": {Stdout: "ok"}}}
	sched, vctx := newTestScheduler(t, transport)

	a := passingRule("a", "shared")
	a.Cache = true
	b := passingRule("b", "shared")
	b.Cache = true

	results := sched.Run(context.Background(), []models.Rule{a, b}, vctx, Options{Workers: 1})
	if atomic.LoadInt32(&transport.calls) != 1 {
		t.Errorf("transport calls = %d, want 1 (cached)", transport.calls)
	}
	if !results[0].Cached && !results[1].Cached {
		t.Error("at least the replayed result must be flagged cached")
	}
	for _, res := range results {
		if res.Status != models.StatusPass {
			t.Errorf("rule %s = %s", res.ID, res.Status)
		}
	}
}

func TestRun_UncachedCommandRunsPerRule(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{"shared": {Stdout: "ok"}}}
	sched, vctx := newTestScheduler(t, transport)

	results := sched.Run(context.Background(),
		[]models.Rule{passingRule("a", "shared"), passingRule("b", "shared")}, vctx, Options{Workers: 1})
	if atomic.LoadInt32(&transport.calls) != 2 {
		t.Errorf("transport calls = %d, want 2", transport.calls)
	}
	if results[0].Cached || results[1].Cached {
		t.Error("uncached rules must not be flagged cached")
	}
}

func TestRun_TimeoutYieldsUndef(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{
		"slow": {ExitCode: 124, TimedOut: true},
	}}
	sched, vctx := newTestScheduler(t, transport)

	results := sched.Run(context.Background(), []models.Rule{passingRule("slow-rule", "slow")}, vctx, Options{})
	if results[0].Status != models.StatusUndef {
		t.Errorf("status = %s, want UNDEF", results[0].Status)
	}
	if results[0].Reason != "timeout" {
		t.Errorf("reason = %q", results[0].Reason)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	transport := &fakeTransport{answers: map[string]models.CommandResult{"a": {Stdout: "ok"}}}
	sched, vctx := newTestScheduler(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := sched.Run(ctx, []models.Rule{passingRule("r", "a")}, vctx, Options{})
	if results[0].Status != models.StatusUndef {
		t.Errorf("status = %s, want UNDEF after cancellation", results[0].Status)
	}
	if !strings.Contains(results[0].Reason, "aborted") {
		t.Errorf("reason = %q", results[0].Reason)
	}
}

func TestUnreachableResults(t *testing.T) {
	rules := []models.Rule{passingRule("a", "x"), passingRule("b", "y")}
	results := UnreachableResults(rules, Options{CheckIDs: []string{"a"}}, "host unreachable: dial tcp: timeout")

	if len(results) != 1 {
		t.Fatalf("results = %d, filters must still apply", len(results))
	}
	if results[0].Status != models.StatusUndef {
		t.Errorf("status = %s, want UNDEF", results[0].Status)
	}
	if !strings.Contains(results[0].Reason, "unreachable") {
		t.Errorf("reason = %q", results[0].Reason)
	}
}
