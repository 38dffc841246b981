package cli

import (
	"fmt"
	"os"

	"github.com/hostlint/hostlint/internal/observability/logging"
	"github.com/hostlint/hostlint/internal/observability/receipt"
	"github.com/hostlint/hostlint/internal/profile"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <profile.yaml>",
	Short: "Validate a policy profile without running it",
	Long: `Resolves the profile's extends chain and reports every authoring
error: cycles, duplicate check ids, unknown severities or assert
types, uncompilable regexps.

Example:
  hostlint validate profiles/baseline.yaml`,
	Args:         cobra.ExactArgs(1),
	RunE:         runValidate,
	SilenceUsage: true,
}

// GetValidateCmd export
func GetValidateCmd() *cobra.Command {
	return validateCmd
}

func runValidate(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	path := args[0]
	sess := receipt.Start(ctx, "hostlint validate", os.Args[1:])
	defer func() { _ = sess.Finish(err, receipt.WithProfile(path, "")) }()

	log := logging.From(ctx)
	log.Event(ctx, "validate.start", map[string]any{"profile": path})

	resolved, err := profile.Resolve(path)
	if err != nil {
		return err
	}

	issues := profile.Validate(resolved)
	if len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, issue, colorReset)
		}
		return fmt.Errorf("profile %s: %d problem(s) found", path, len(issues))
	}

	fmt.Printf("%s✓ %s: %d checks, profile is valid%s\n",
		colorGreen, resolved.Name, len(resolved.Checks), colorReset)
	return nil
}
