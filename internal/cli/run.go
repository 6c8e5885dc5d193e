// Package cli — run.go implements the "pipewright run" command.
//
// The run command is the primary user-facing operation. It loads the
// pipeline file, evaluates the trigger filters against the current Git
// branch and tag, and executes the matched pipeline end to end.
//
// Orchestration steps:
//  1. Load tool settings and the pipeline file
//  2. Resolve branch/tag from flags or the Git checkout
//  3. Evaluate trigger filters (a non-match is a clean exit, not an error)
//  4. Select the execution engine (host shell or Docker job container)
//  5. Wire the cache store and release publisher
//  6. Run the job and report per-step results (text or JSON)
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/docker"
	"github.com/pipewright/pipewright/internal/gitctx"
	"github.com/pipewright/pipewright/internal/model"
	"github.com/pipewright/pipewright/internal/release"
	"github.com/pipewright/pipewright/internal/runner"
	"github.com/pipewright/pipewright/internal/trigger"
)

// runFlags holds the flag values for the run command.
// These are bound to cobra flags in NewRunCommand.
type runFlags struct {
	file      string   // --file: explicit pipeline file path
	dir       string   // --dir: project directory (default: cwd)
	branch    string   // --branch: branch override for trigger evaluation
	tag       string   // --tag: tag override for trigger evaluation
	container bool     // --container: run steps inside a Docker container
	image     string   // --image: container image override
	noCache   bool     // --no-cache: skip cache restore and save
	noDeploy  bool     // --no-deploy: skip the deploy phase
	env       []string // --env: extra KEY=VALUE pairs for step environments
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for the current checkout",
		Long: `Load the pipeline file, evaluate its trigger filters against the current
branch and tag, and execute the matched phases in order: install, build,
test, package, deploy.

Branch and tag default to the state of the Git checkout in the project
directory. A run whose filters do not match exits successfully without
executing any step.

Examples:
  pipewright run
  pipewright run --branch master
  pipewright run --tag v1.2.3
  pipewright run --container --image rust:1.80
  pipewright run --no-cache --no-deploy`,

		// No positional arguments; the pipeline file is discovered or
		// given via --file.
		Args: cobra.NoArgs,

		// RunE returns an error to the root command's error handler.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Pipeline file path (default: discover in project directory)")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Branch name for trigger evaluation (default: Git checkout)")
	cmd.Flags().StringVar(&flags.tag, "tag", "", "Tag name for trigger evaluation (default: Git checkout)")
	cmd.Flags().BoolVar(&flags.container, "container", false, "Run steps inside a Docker job container")
	cmd.Flags().StringVar(&flags.image, "image", "", "Container image for --container runs (default: pipeline image)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Skip cache restore and save")
	cmd.Flags().BoolVar(&flags.noDeploy, "no-deploy", false, "Skip the deploy phase")
	cmd.Flags().StringArrayVarP(&flags.env, "env", "e", nil, "Extra KEY=VALUE environment for steps (repeatable)")

	return cmd
}

// runRun is the main orchestration function for the run command.
func runRun(ctx context.Context, flags *runFlags) error {
	// Step 1: Load tool settings (cache root, default image, token env).
	settings, err := config.LoadSettings()
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to load settings", err)
	}

	// Step 2: Resolve the project directory.
	workDir := flags.dir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve project directory", err)
	}
	VerboseLog("Project directory: %s", workDir)

	// Step 3: Locate and load the pipeline file.
	pipelinePath := flags.file
	if pipelinePath == "" {
		pipelinePath, err = config.FindPipelineFile(workDir)
		if err != nil {
			return err // FindPipelineFile already returns CLIError
		}
	}
	VerboseLog("Pipeline file: %s", pipelinePath)

	p, err := config.LoadPipeline(pipelinePath)
	if err != nil {
		return err
	}
	if err := applyEnvFlags(p, flags.env); err != nil {
		return err
	}
	VerboseLog("Loaded pipeline %q (%d install, %d build, %d test steps)",
		p.Name, len(p.Install), len(p.Build), len(p.Test))

	// Step 4: Resolve trigger facts. Flags win; the Git checkout fills
	// in the rest when the project directory is a repository.
	branch, tag := flags.branch, flags.tag
	if (branch == "" || tag == "") && gitctx.IsRepo(workDir) {
		if branch == "" {
			branch, err = gitctx.CurrentBranch(workDir)
			if err != nil {
				return err
			}
		}
		if tag == "" {
			tag = gitctx.CurrentTag(workDir)
		}
	}
	VerboseLog("Trigger facts: branch=%q tag=%q", branch, tag)

	// Step 5: Evaluate trigger filters.
	decision, err := trigger.Evaluate(p, branch, tag)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "trigger evaluation failed", err)
	}
	if !decision.Run {
		// A filtered-out run is a normal outcome, not a failure.
		printSkipped(p.Name, decision.Reason)
		return nil
	}
	VerboseLog("Trigger matched: %s", decision.Reason)

	// Step 6: Build the run context. A tag that did not match the tag
	// pattern is dropped so it cannot enable tag-gated deploys.
	if !decision.TagRun {
		tag = ""
	}
	rc := &model.RunContext{
		RunID:     uuid.NewString()[:8],
		Branch:    branch,
		Tag:       tag,
		WorkDir:   workDir,
		StartedAt: time.Now().UTC(),
	}
	VerboseLog("Run ID: %s", rc.RunID)

	// Step 7: Select the execution engine.
	exec, cleanup, err := selectEngine(ctx, p, rc, flags, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	// Step 8: Wire the cache store and the release publisher.
	job := &runner.Job{
		Pipeline: p,
		Context:  rc,
		Exec:     exec,
		Out:      os.Stdout,
		Err:      os.Stderr,
		Log:      VerboseLog,
	}
	if !flags.noCache && len(p.Cache) > 0 {
		job.Cache = cache.NewStore(settings.CacheRoot)
		VerboseLog("Cache store: %s", settings.CacheRoot)
	}
	if !flags.noDeploy && p.Deploy != nil {
		token := resolveToken(p.Deploy, settings)
		job.Publisher = release.NewGitHubClient(token)
	}

	// Step 9: Run the job and report.
	result, runErr := job.Run(ctx)
	result.Reason = decision.Reason
	printRunResult(result)
	return runErr
}

// applyEnvFlags merges --env KEY=VALUE pairs into the pipeline's
// environment, overriding file-declared values.
func applyEnvFlags(p *model.Pipeline, pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	if p.Environment == nil {
		p.Environment = make(map[string]string, len(pairs))
	}
	for _, pair := range pairs {
		key, value, ok := splitEnvPair(pair)
		if !ok {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid --env value %q: expected KEY=VALUE", pair))
		}
		p.Environment[key] = value
	}
	return nil
}

// splitEnvPair splits "KEY=VALUE" at the first '='. The value may
// itself contain '=' characters.
func splitEnvPair(pair string) (string, string, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}

// resolveToken looks up the deploy token. The pipeline's token_env
// names the variable; when it is unset, the variable named by the tool
// settings is tried as a fallback.
func resolveToken(deploy *model.Deploy, settings *config.Settings) string {
	if token := os.Getenv(deploy.TokenEnv); token != "" {
		return token
	}
	if settings.TokenEnv != "" && settings.TokenEnv != deploy.TokenEnv {
		if token := os.Getenv(settings.TokenEnv); token != "" {
			VerboseLog("Token taken from fallback variable %s", settings.TokenEnv)
			return token
		}
	}
	return ""
}

// selectEngine returns the CommandRunner for this run and a cleanup
// function. For --container runs it starts a long-lived job container
// and tears it down when the run finishes.
func selectEngine(ctx context.Context, p *model.Pipeline, rc *model.RunContext, flags *runFlags, settings *config.Settings) (runner.CommandRunner, func(), error) {
	if !flags.container {
		return runner.NewShellRunner(), func() {}, nil
	}

	image := flags.image
	if image == "" {
		image = p.Image
	}
	if image == "" {
		image = settings.DefaultImage
	}

	cli, err := docker.NewClient()
	if err != nil {
		return nil, nil, err // NewClient already returns CLIError
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	VerboseLog("Connected to Docker daemon")

	VerboseLog("Pulling image %s...", image)
	if err := docker.PullImage(ctx, image); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}

	containerID, err := docker.StartJobContainer(ctx, p.Name, image, rc)
	if err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	VerboseLog("Job container started: %s", containerID)

	if err := docker.WaitForContainer(ctx, cli, containerID, 30*time.Second); err != nil {
		_ = docker.RemoveJobContainer(ctx, cli, containerID)
		_ = cli.Close()
		return nil, nil, err
	}

	cleanup := func() {
		VerboseLog("Removing job container %s", containerID)
		if err := docker.RemoveJobContainer(context.Background(), cli, containerID); err != nil {
			VerboseLog("Warning: failed to remove job container: %v", err)
		}
		_ = cli.Close()
	}
	return docker.NewStepRunner(containerID), cleanup, nil
}

// printSkipped reports a run whose trigger filters did not match.
func printSkipped(pipeline, reason string) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{
			"pipeline":  pipeline,
			"triggered": false,
			"reason":    reason,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("Pipeline %q not triggered: %s\n", pipeline, reason)
}

// printRunResult reports per-step outcomes in text or JSON format.
func printRunResult(result *model.RunResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("\nRun %s — pipeline %q\n", result.RunID, result.Pipeline)
	for _, step := range result.Steps {
		switch step.Status {
		case model.StatusFailed:
			fmt.Printf("  [%s] %-9s %s (exit code %d, %s)\n",
				step.Phase, step.Status, step.Name, step.ExitCode, step.Duration.Round(time.Millisecond))
		case model.StatusSkipped:
			fmt.Printf("  [%s] %-9s %s\n", step.Phase, step.Status, step.Name)
		default:
			fmt.Printf("  [%s] %-9s %s (%s)\n",
				step.Phase, step.Status, step.Name, step.Duration.Round(time.Millisecond))
		}
	}
	if result.Succeeded {
		fmt.Printf("Run succeeded in %s\n", result.Duration.Round(time.Millisecond))
	} else {
		fmt.Printf("Run failed after %s\n", result.Duration.Round(time.Millisecond))
	}
}
