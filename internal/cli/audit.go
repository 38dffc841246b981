package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hostlint/hostlint/internal/assert"
	"github.com/hostlint/hostlint/internal/condition"
	"github.com/hostlint/hostlint/internal/evidence"
	"github.com/hostlint/hostlint/internal/executor"
	"github.com/hostlint/hostlint/internal/facts"
	"github.com/hostlint/hostlint/internal/inventory"
	"github.com/hostlint/hostlint/internal/models"
	"github.com/hostlint/hostlint/internal/observability"
	"github.com/hostlint/hostlint/internal/observability/logging"
	otelobs "github.com/hostlint/hostlint/internal/observability/otel"
	"github.com/hostlint/hostlint/internal/observability/receipt"
	"github.com/hostlint/hostlint/internal/profile"
	"github.com/hostlint/hostlint/internal/scheduler"
	"github.com/hostlint/hostlint/internal/score"
	"github.com/hostlint/hostlint/internal/vars"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// exit codes: 0 compliant, 1 usage/profile error (via RunE), 2 policy
// failure, 3 target unreachable
const (
	exitPolicyFail  = 2
	exitUnreachable = 3
)

var auditCmd = &cobra.Command{
	Use:   "audit --profile <profile.yaml>",
	Short: "Audit a host against a policy profile",
	Long: `Resolves the profile's extends chain, evaluates every applicable
check on the target and prints a scored report.

Examples:
  # Local audit at the default level
  hostlint audit --profile profiles/baseline.yaml

  # Strict level with variable overrides and evidence capture
  hostlint audit --profile profiles/baseline.yaml --level strict \
    --var SSH_PORT=2222 --evidence ./evidence

  # Remote audit of an inventory host
  hostlint audit --profile profiles/baseline.yaml --host web01 \
    --inventory inventory.yaml

  # CI mode: JSON report, fail on any high-severity finding
  hostlint audit --profile profiles/baseline.yaml --format json \
    --fail-level high`,
	RunE:         runAudit,
	SilenceUsage: true,
}

var (
	auditProfileFlag     string
	auditLevelFlag       string
	auditVarFlags        []string
	auditWorkersFlag     int
	auditModulesFlag     []string
	auditChecksFlag      []string
	auditTagsFlag        []string
	auditEvidenceFlag    string
	auditTimeoutFlag     time.Duration
	auditFormatFlag      string
	auditFailLevelFlag   string
	auditFailOnUndefFlag bool
	auditHostFlag        string
	auditInventoryFlag   string
	auditOutputFlag      string
)

func init() {
	f := auditCmd.Flags()
	f.StringVarP(&auditProfileFlag, "profile", "p", "", "Path to the policy profile (required)")
	f.StringVarP(&auditLevelFlag, "level", "l", "", "Audit level: baseline, strict or paranoid")
	f.StringArrayVar(&auditVarFlags, "var", nil, "Variable override KEY=VALUE (repeatable)")
	f.IntVarP(&auditWorkersFlag, "workers", "w", 0, "Concurrent check executions (0 = auto)")
	f.StringSliceVar(&auditModulesFlag, "modules", nil, "Run only checks from these modules")
	f.StringSliceVar(&auditChecksFlag, "checks", nil, "Run only these check ids")
	f.StringSliceVar(&auditTagsFlag, "tags", nil, "Run only checks carrying these tags (key or key=value)")
	f.StringVar(&auditEvidenceFlag, "evidence", "", "Directory for per-check evidence files")
	f.DurationVarP(&auditTimeoutFlag, "timeout", "t", 0, "Default per-check timeout (0 = config default)")
	f.StringVar(&auditFormatFlag, "format", "text", "Output format: text or json")
	f.StringVar(&auditFailLevelFlag, "fail-level", "", "FAIL severity that makes the run exit non-zero: none, low, medium, high")
	f.BoolVar(&auditFailOnUndefFlag, "fail-on-undef", false, "Exit non-zero when any check is UNDEF")
	f.StringVar(&auditHostFlag, "host", "", "Audit a remote inventory host instead of the local machine")
	f.StringVar(&auditInventoryFlag, "inventory", "", "Inventory file for remote audits")
	f.StringVarP(&auditOutputFlag, "output", "o", "", "Also write the JSON report to this file")
	_ = auditCmd.MarkFlagRequired("profile")
}

// GetAuditCmd export
func GetAuditCmd() *cobra.Command {
	return auditCmd
}

func runAudit(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "hostlint audit", os.Args[1:])
	var receiptOpts []receipt.Option
	finished := false
	finish := func(runErr error) {
		if finished {
			return
		}
		finished = true
		receiptOpts = append(receiptOpts, receipt.WithProfile(auditProfileFlag, auditLevelFlag))
		_ = sess.Finish(runErr, receiptOpts...)
	}
	defer func() { finish(err) }()

	log := logging.From(ctx)
	start := time.Now()

	if h := otelobs.From(ctx); h != nil {
		var span trace.Span
		ctx, span = h.Tracer.Start(ctx, "hostlint.audit",
			trace.WithAttributes(
				attribute.String("hostlint.op_id", observability.OpID(ctx)),
				attribute.String("hostlint.command", "audit"),
				attribute.String("hostlint.profile", auditProfileFlag),
			))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed")
			} else {
				span.SetStatus(codes.Ok, "success")
			}
			span.End()
		}()
	}

	log.Event(ctx, "audit.start", map[string]any{"profile": auditProfileFlag})

	var resultStatus string
	defer func() {
		log.Event(ctx, "audit.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus,
		})
	}()
	resultStatus = "fail"

	if auditFormatFlag != "text" && auditFormatFlag != "json" {
		return fmt.Errorf("invalid format: %s (use text or json)", auditFormatFlag)
	}
	if auditLevelFlag == "" {
		auditLevelFlag = toolCfg.Level
	}
	level, parseErr := vars.ParseLevel(auditLevelFlag)
	if parseErr != nil {
		return parseErr
	}
	if auditFailLevelFlag == "" {
		auditFailLevelFlag = toolCfg.FailLevel
	}
	failLevel, parseErr := score.ParseFailLevel(auditFailLevelFlag)
	if parseErr != nil {
		return parseErr
	}
	failOnUndef := auditFailOnUndefFlag || toolCfg.FailOnUndef

	overrides, parseErr := parseVarOverrides(auditVarFlags)
	if parseErr != nil {
		return parseErr
	}
	tagFilters, parseErr := parseTagFilters(auditTagsFlag)
	if parseErr != nil {
		return parseErr
	}

	resolved, resolveErr := profile.Resolve(auditProfileFlag)
	if resolveErr != nil {
		return resolveErr
	}
	if issues := profile.Validate(resolved); len(issues) > 0 {
		return fmt.Errorf("profile %s invalid:\n  %s", auditProfileFlag, strings.Join(issues, "\n  "))
	}
	baseDir := filepath.Dir(auditProfileFlag)

	timeout := auditTimeoutFlag
	if timeout <= 0 {
		timeout = toolCfg.Timeout
	}
	workers := auditWorkersFlag
	if workers <= 0 {
		workers = toolCfg.Workers
	}
	evidenceDir := auditEvidenceFlag
	if evidenceDir == "" {
		evidenceDir = toolCfg.EvidenceDir
	}

	opts := scheduler.Options{
		Workers:        workers,
		Modules:        auditModulesFlag,
		CheckIDs:       auditChecksFlag,
		TagFilters:     tagFilters,
		DefaultTimeout: timeout,
	}

	// transport selection: local shell unless a remote host is named
	var transport executor.Transport
	hostLabel := ""
	transportName := "local"
	var hostVars map[string]string
	if auditHostFlag != "" {
		inventoryPath := auditInventoryFlag
		if inventoryPath == "" {
			inventoryPath = toolCfg.Inventory
		}
		if inventoryPath == "" {
			return fmt.Errorf("--host requires --inventory (or an inventory entry in hostlint.yaml)")
		}
		inv, invErr := inventory.Load(inventoryPath)
		if invErr != nil {
			return invErr
		}
		host, found := inv.Find(auditHostFlag)
		if !found {
			return fmt.Errorf("host %q not found in inventory %s", auditHostFlag, inventoryPath)
		}
		hostLabel = host.Label()
		hostVars = host.Vars
		transportName = "ssh"

		ssh := executor.NewSSHTransport(host)
		if connErr := ssh.Connect(ctx); connErr != nil {
			log.Error("audit", "target unreachable", "host", hostLabel, "error", connErr.Error())
			report := unreachableReport(resolved, opts, level, hostLabel, connErr)
			if outErr := emitReport(report); outErr != nil {
				return outErr
			}
			receiptOpts = append(receiptOpts,
				receipt.WithTarget(receipt.TargetSummary{Host: hostLabel, Transport: transportName}),
				receipt.WithAudit(receipt.AuditSummary{
					ChecksTotal: report.Summary.Total,
					Counts:      statusCounts(report.Summary),
					Score:       report.Summary.Score,
					Coverage:    report.Summary.Coverage,
					ExitCode:    exitUnreachable,
				}))
			finish(connErr)
			teardownRunContext(cmd, args)
			os.Exit(exitUnreachable)
		}
		transport = ssh
	} else {
		transport = executor.NewLocalTransport()
	}
	defer transport.Close()

	hostFacts := collectFacts(ctx, transport, auditHostFlag != "", timeout)

	// host vars sit below CLI --var overrides
	merged := make(map[string]string, len(hostVars)+len(overrides))
	for k, v := range hostVars {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	vctx, varsErr := vars.Build(resolved.Vars, vars.Options{
		Level:           level,
		BaseDir:         baseDir,
		Overrides:       merged,
		DiscoveredFiles: discoverLevelFiles(baseDir, level),
		Facts:           hostFacts,
	})
	if varsErr != nil {
		return varsErr
	}

	conditions, condErr := condition.NewEvaluator(vctx)
	if condErr != nil {
		return condErr
	}

	sink, evErr := evidence.NewWriter(evidenceDir)
	if evErr != nil {
		return evErr
	}

	asserts := assert.NewEvaluator(baseDir, vctx)
	sched := scheduler.New(transport, conditions, asserts, sink)
	results := sched.Run(ctx, resolved.Checks, vctx, opts)

	summary := score.Summarize(results, string(level))
	summary.Variables = vctx.Variables
	summary.OS = hostFacts.OS.Map()

	report := models.Report{
		Profile: resolved.Name,
		Host:    hostLabel,
		Results: results,
		Summary: summary,
	}
	if outErr := emitReport(report); outErr != nil {
		return outErr
	}

	code := score.ExitCode(results, failLevel, failOnUndef)
	receiptOpts = append(receiptOpts,
		receipt.WithTarget(receipt.TargetSummary{
			Host:      hostLabel,
			Transport: transportName,
			OSID:      hostFacts.OS.ID,
			OSVersion: hostFacts.OS.VersionID,
		}),
		receipt.WithAudit(receipt.AuditSummary{
			ChecksTotal: summary.Total,
			Counts:      statusCounts(summary),
			Score:       summary.Score,
			Coverage:    summary.Coverage,
			ExitCode:    code,
			EvidenceDir: evidenceDir,
		}))

	if code != 0 {
		finish(nil)
		teardownRunContext(cmd, args)
		os.Exit(code)
	}
	resultStatus = "success"
	return nil
}

// collectFacts reads os-release locally or over the transport so
// remote audits gate on the remote OS, not the operator's machine.
func collectFacts(ctx context.Context, transport executor.Transport, remote bool, timeout time.Duration) facts.Facts {
	if !remote {
		return facts.Collect()
	}
	res := transport.Execute(ctx, "cat /etc/os-release", timeout)
	if res.ExitCode != 0 {
		return facts.Facts{}
	}
	return facts.Facts{OS: facts.Normalize(facts.ParseOSRelease(res.Stdout))}
}

// discoverLevelFiles lists the conventional per-level env files next to
// the profile. The variable builder never probes on its own.
func discoverLevelFiles(baseDir string, level vars.Level) []string {
	var found []string
	for _, name := range []string{
		"vars_" + string(level) + ".env",
		"vars." + string(level) + ".env",
	} {
		path := filepath.Join(baseDir, name)
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	return found
}

func parseVarOverrides(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --var %q (want KEY=VALUE)", item)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

func parseTagFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, item := range raw {
		key, value, _ := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid --tags entry %q", item)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func unreachableReport(p *models.Profile, opts scheduler.Options, level vars.Level, host string, connErr error) models.Report {
	results := scheduler.UnreachableResults(p.Checks, opts, "host unreachable: "+connErr.Error())
	summary := score.Summarize(results, string(level))
	return models.Report{
		Profile: p.Name,
		Host:    host,
		Results: results,
		Summary: summary,
	}
}

func statusCounts(s models.Summary) map[string]int {
	out := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		out[string(status)] = n
	}
	return out
}

func emitReport(report models.Report) error {
	if auditFormatFlag == "json" {
		data, err := FormatJSONReport(report)
		if err != nil {
			return fmt.Errorf("failed to format JSON report: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(FormatTextReport(report))
	}
	if auditOutputFlag != "" {
		data, err := FormatJSONReport(report)
		if err != nil {
			return err
		}
		if err := os.WriteFile(auditOutputFlag, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write report %s: %w", auditOutputFlag, err)
		}
	}
	return nil
}
