package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hostlint/hostlint/internal/facts"
	"github.com/hostlint/hostlint/internal/models"
	"github.com/hostlint/hostlint/internal/profile"
	"github.com/hostlint/hostlint/internal/vars"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <profile.yaml>",
	Short: "Show a profile after extends resolution",
	Long: `Resolves the extends chain and prints the flattened profile: the
merged check list and the variable context a run at the given level
would see. Useful for debugging layered profiles.

Examples:
  hostlint inspect profiles/strict.yaml --level strict
  hostlint inspect profiles/strict.yaml --format yaml`,
	Args:         cobra.ExactArgs(1),
	RunE:         runInspect,
	SilenceUsage: true,
}

var (
	inspectLevelFlag  string
	inspectFormatFlag string
	inspectVarFlags   []string
)

func init() {
	f := inspectCmd.Flags()
	f.StringVarP(&inspectLevelFlag, "level", "l", "baseline", "Level for variable resolution")
	f.StringVar(&inspectFormatFlag, "format", "text", "Output format: text, yaml or json")
	f.StringArrayVar(&inspectVarFlags, "var", nil, "Variable override KEY=VALUE (repeatable)")
}

// GetInspectCmd export
func GetInspectCmd() *cobra.Command {
	return inspectCmd
}

type inspectView struct {
	Profile     string            `json:"profile" yaml:"profile"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Level       string            `json:"level" yaml:"level"`
	Checks      []models.Rule     `json:"checks" yaml:"checks"`
	Modules     map[string]int    `json:"modules" yaml:"modules"`
	Variables   map[string]string `json:"variables" yaml:"variables"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	level, err := vars.ParseLevel(inspectLevelFlag)
	if err != nil {
		return err
	}
	overrides, err := parseVarOverrides(inspectVarFlags)
	if err != nil {
		return err
	}

	resolved, err := profile.Resolve(path)
	if err != nil {
		return err
	}
	if issues := profile.Validate(resolved); len(issues) > 0 {
		return fmt.Errorf("profile %s invalid:\n  %s", path, strings.Join(issues, "\n  "))
	}

	baseDir := filepath.Dir(path)
	vctx, err := vars.Build(resolved.Vars, vars.Options{
		Level:           level,
		BaseDir:         baseDir,
		Overrides:       overrides,
		DiscoveredFiles: discoverLevelFiles(baseDir, level),
		Facts:           facts.Collect(),
	})
	if err != nil {
		return err
	}

	modules := make(map[string]int)
	for _, chk := range resolved.Checks {
		modules[chk.ModuleOrDefault()]++
	}

	view := inspectView{
		Profile:     resolved.Name,
		Description: resolved.Description,
		Level:       string(level),
		Checks:      resolved.Checks,
		Modules:     modules,
		Variables:   vctx.Variables,
	}

	switch inspectFormatFlag {
	case "json":
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(view)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	case "text":
		printInspectText(view)
	default:
		return fmt.Errorf("invalid format: %s (use text, yaml or json)", inspectFormatFlag)
	}
	return nil
}

func printInspectText(view inspectView) {
	fmt.Printf("Profile: %s (level=%s)\n", view.Profile, view.Level)
	if view.Description != "" {
		fmt.Printf("Description: %s\n", view.Description)
	}
	fmt.Printf("Checks: %d\n", len(view.Checks))

	moduleNames := make([]string, 0, len(view.Modules))
	for name := range view.Modules {
		moduleNames = append(moduleNames, name)
	}
	sort.Strings(moduleNames)
	for _, name := range moduleNames {
		fmt.Printf("  %-16s %d\n", name, view.Modules[name])
	}

	fmt.Println("\nChecks:")
	for _, chk := range view.Checks {
		fmt.Printf("  %-28s %-8s %-12s %s\n", chk.ID, chk.Severity, chk.AssertType, chk.ModuleOrDefault())
	}

	varNames := make([]string, 0, len(view.Variables))
	for name := range view.Variables {
		varNames = append(varNames, name)
	}
	sort.Strings(varNames)
	fmt.Println("\nVariables:")
	for _, name := range varNames {
		fmt.Printf("  %s=%s\n", name, view.Variables[name])
	}
}
