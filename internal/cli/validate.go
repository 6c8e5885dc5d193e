// Package cli — validate.go implements the "pipewright validate" command.
//
// The validate command loads and validates a pipeline file without
// executing anything. It is intended for editor integrations and
// pre-commit hooks: exit code 0 means the file would run, exit code 2
// means it would be rejected.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/model"
)

// validateFlags holds the flag values for the validate command.
type validateFlags struct {
	file string // --file: explicit pipeline file path
}

// validateSummary is the JSON output shape for a valid pipeline.
type validateSummary struct {
	File         string `json:"file"`
	Pipeline     string `json:"pipeline"`
	Version      int    `json:"version"`
	InstallSteps int    `json:"installSteps"`
	BuildSteps   int    `json:"buildSteps"`
	TestSteps    int    `json:"testSteps"`
	Artifacts    int    `json:"artifacts"`
	HasDeploy    bool   `json:"hasDeploy"`
	CachePaths   int    `json:"cachePaths"`
	Valid        bool   `json:"valid"`
}

// NewValidateCommand creates the "validate" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewValidateCommand() *cobra.Command {
	flags := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate a pipeline file without running it",
		Long: `Load a pipeline file, apply defaults, and run all validation checks.

Nothing is executed. The command exits 0 when the file is valid and 2
when loading or validation fails.

Examples:
  pipewright validate
  pipewright validate ./project
  pipewright validate --file ci/pipewright.jsonc`,

		// An optional positional argument names the project directory.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(dir, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Pipeline file path (default: discover in project directory)")

	return cmd
}

// runValidate is the main logic function for the validate command.
func runValidate(dir string, flags *validateFlags) error {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
		dir = cwd
	}

	path := flags.file
	if path == "" {
		found, err := config.FindPipelineFile(dir)
		if err != nil {
			return err // FindPipelineFile already returns CLIError
		}
		path = found
	}
	VerboseLog("Validating pipeline file: %s", path)

	// LoadPipeline applies defaults and runs every validation check.
	p, err := config.LoadPipeline(path)
	if err != nil {
		return err
	}

	summary := validateSummary{
		File:         path,
		Pipeline:     p.Name,
		Version:      p.Version,
		InstallSteps: len(p.Install),
		BuildSteps:   len(p.Build),
		TestSteps:    len(p.Test),
		Artifacts:    len(p.Artifacts),
		HasDeploy:    p.Deploy != nil,
		CachePaths:   len(p.Cache),
		Valid:        true,
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%s: valid\n", path)
	fmt.Printf("  Pipeline:  %s (version %d)\n", summary.Pipeline, summary.Version)
	fmt.Printf("  Steps:     %d install, %d build, %d test\n",
		summary.InstallSteps, summary.BuildSteps, summary.TestSteps)
	fmt.Printf("  Artifacts: %d\n", summary.Artifacts)
	if summary.HasDeploy {
		fmt.Printf("  Deploy:    %s -> %s\n", p.Deploy.Provider, p.Deploy.Repository)
	}
	if summary.CachePaths > 0 {
		fmt.Printf("  Cache:     %d path(s)\n", summary.CachePaths)
	}
	return nil
}
