package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/hostlint/hostlint/internal/config"
	"github.com/hostlint/hostlint/internal/observability"
	"github.com/hostlint/hostlint/internal/observability/logging"
	otelobs "github.com/hostlint/hostlint/internal/observability/otel"
	"github.com/hostlint/hostlint/internal/observability/receipt"
	"github.com/hostlint/hostlint/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hostlint",
	Short: "Compliance audit engine for Linux hosts",
	Long: `hostlint audits machines against layered YAML policy profiles.
Profiles describe probe commands and expected outcomes; hostlint runs
them locally or over SSH and scores the host.`,
	Version:           version.BuildVersion(),
	PersistentPreRunE: setupRunContext,
	PersistentPostRun: teardownRunContext,
}

var (
	logFormatFlag    string
	logLevelFlag     string
	logOutputFlag    string
	otelFlag         bool
	otelEndpointFlag string
	otelProtocolFlag string
	otelInsecureFlag bool
	receiptFlag      string
	receiptModeFlag  string
	configDirFlag    string
)

// toolCfg holds file/env defaults; flags win when explicitly set.
var toolCfg config.Config

// per-invocation teardown handles
var (
	activeLogger  logging.Logger
	activeOtel    *otelobs.Handle
	activeReceipt receipt.Writer
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logFormatFlag, "log-format", "pretty", "Log format: pretty or jsonl")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logOutputFlag, "log-output", "stderr", "Log destination: stderr or a file path")
	pf.BoolVar(&otelFlag, "otel", false, "Enable OpenTelemetry tracing")
	pf.StringVar(&otelEndpointFlag, "otel-endpoint", "", "OTLP endpoint (defaults per protocol)")
	pf.StringVar(&otelProtocolFlag, "otel-protocol", otelobs.ProtocolHTTP, "OTLP protocol: otlphttp or otlpgrpc")
	pf.BoolVar(&otelInsecureFlag, "otel-insecure", false, "Allow insecure OTLP connections")
	pf.StringVar(&receiptFlag, "receipt", "", "Write a run receipt to this path")
	pf.StringVar(&receiptModeFlag, "receipt-mode", "overwrite", "Receipt write mode: overwrite or append")
	pf.StringVar(&configDirFlag, "config-dir", ".", "Directory searched for hostlint.yaml")

	rootCmd.AddCommand(GetAuditCmd())
	rootCmd.AddCommand(GetValidateCmd())
	rootCmd.AddCommand(GetInspectCmd())
}

func setupRunContext(cmd *cobra.Command, args []string) error {
	var err error
	toolCfg, err = config.LoadConfig(configDirFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// config file supplies defaults for flags the user did not set
	flags := cmd.Flags()
	if !flags.Changed("log-format") && toolCfg.LogFormat != "" {
		logFormatFlag = toolCfg.LogFormat
	}
	if !flags.Changed("log-level") && toolCfg.LogLevel != "" {
		logLevelFlag = toolCfg.LogLevel
	}
	if !flags.Changed("log-output") && toolCfg.LogOutput != "" {
		logOutputFlag = toolCfg.LogOutput
	}
	if !flags.Changed("receipt") && toolCfg.Receipt != "" {
		receiptFlag = toolCfg.Receipt
	}
	if !flags.Changed("receipt-mode") && toolCfg.ReceiptMode != "" {
		receiptModeFlag = toolCfg.ReceiptMode
	}

	ctx := observability.WithOpID(cmd.Context())

	logger, err := logging.NewLogger(logging.Config{
		Format: logFormatFlag,
		Level:  logLevelFlag,
		Output: logOutputFlag,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	activeLogger = logger
	ctx = logging.WithLogger(ctx, logger)

	if otelFlag {
		handle, err := otelobs.Init(ctx, otelobs.Config{
			Enabled:     true,
			Endpoint:    otelEndpointFlag,
			Protocol:    otelProtocolFlag,
			Insecure:    otelInsecureFlag,
			ServiceName: "hostlint",
			SampleRatio: 1.0,
		})
		if err != nil {
			return fmt.Errorf("init otel: %w", err)
		}
		activeOtel = handle
		ctx = otelobs.WithHandle(ctx, handle)
	}

	if receiptFlag != "" {
		w, err := receipt.NewWriter(receiptFlag, receiptModeFlag)
		if err != nil {
			return err
		}
		activeReceipt = w
		ctx = receipt.WithWriter(ctx, w)
	}

	cmd.SetContext(ctx)
	return nil
}

func teardownRunContext(cmd *cobra.Command, args []string) {
	if activeReceipt != nil {
		_ = activeReceipt.Close()
		activeReceipt = nil
	}
	if activeOtel != nil {
		_ = activeOtel.Shutdown(context.Background())
		activeOtel = nil
	}
	if activeLogger != nil {
		_ = activeLogger.Close()
		activeLogger = nil
	}
}

func Execute() {
	ExecuteContext(context.Background())
}

// ExecuteContext runs the CLI under a caller-provided context so main
// can cancel in-flight audits on SIGINT/SIGTERM.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
