// Package model defines the domain types for the pipewright CLI.
//
// All entities in this package are plain data structures decoded from a
// pipeline definition file (YAML or JSONC) plus the transient run-time
// records produced while executing a job. The package has no dependencies
// on the execution machinery; it only knows the shape of a pipeline and
// how to validate it.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StepStatus represents the lifecycle state of a single pipeline step.
// The state transitions are:
//
//	Pending → Running → Succeeded | Failed
//	Pending → Skipped (when an earlier step failed or a gate did not match)
type StepStatus string

const (
	// StatusPending indicates the step has not started yet.
	StatusPending StepStatus = "pending"

	// StatusRunning indicates the step's process is currently executing.
	StatusRunning StepStatus = "running"

	// StatusSucceeded indicates the step's process exited with code 0.
	StatusSucceeded StepStatus = "succeeded"

	// StatusFailed indicates the step's process exited with a non-zero
	// code, timed out, or could not be started at all.
	StatusFailed StepStatus = "failed"

	// StatusSkipped indicates the step never ran — either a preceding
	// step failed (fail-fast) or a deploy gate excluded it.
	StatusSkipped StepStatus = "skipped"
)

// String returns the string representation of StepStatus.
// This method satisfies the fmt.Stringer interface.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid checks whether the StepStatus value is one of the
// predefined valid states.
func (s StepStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseStepStatus converts a string to a StepStatus.
// Returns an error if the string does not match any valid status.
func ParseStepStatus(s string) (StepStatus, error) {
	status := StepStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid step status: %q (valid: pending, running, succeeded, failed, skipped)", s)
	}
	return status, nil
}

// Phase identifies which section of a pipeline a step belongs to.
// Phases execute strictly in declared order: install → build → test →
// package → deploy. There is no concurrency between phases or steps.
type Phase string

const (
	// PhaseInstall covers toolchain acquisition steps (downloads and
	// installer invocations) that run before any build command.
	PhaseInstall Phase = "install"

	// PhaseBuild covers the build commands of the pipeline.
	PhaseBuild Phase = "build"

	// PhaseTest covers test, format-check, and lint steps.
	PhaseTest Phase = "test"

	// PhasePackage covers artifact archiving.
	PhasePackage Phase = "package"

	// PhaseDeploy covers publishing archives to the release host.
	PhaseDeploy Phase = "deploy"
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	return string(p)
}

// Pipeline is the root of a pipeline definition file. It mirrors the
// declarative CI configuration it replaces: trigger filters, an ordered
// set of install/build/test steps, artifact packaging, an optional
// tag-gated deploy, and a list of cached directories.
//
// Both yaml and json struct tags are present because definitions may be
// written as YAML (pipewright.yml) or JSONC (pipewright.jsonc).
type Pipeline struct {
	// Version is the definition format version. Only version 1 is
	// currently defined; 0 (absent) is treated as 1.
	Version int `yaml:"version,omitempty" json:"version,omitempty"`

	// Name is the pipeline identifier. Used to namespace cache entries
	// and to label job containers. Alphanumeric plus hyphens.
	Name string `yaml:"name" json:"name"`

	// Image is the container image the job runs in when container
	// execution is requested. Informational for local runs.
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	// Shell overrides the interpreter used for run steps. Defaults to
	// "sh -c" ("cmd /C" on Windows) when empty.
	Shell string `yaml:"shell,omitempty" json:"shell,omitempty"`

	// Branches filters which branches trigger the pipeline.
	Branches BranchFilter `yaml:"branches,omitempty" json:"branches,omitempty"`

	// TagPattern is a regular expression matched against tag names.
	// A matching tag always triggers the pipeline regardless of branch
	// filters. Defaults to a semantic-version pattern (^v\d+\.\d+\.\d+$).
	TagPattern string `yaml:"tag_pattern,omitempty" json:"tagPattern,omitempty"`

	// Environment holds variables exported to every step.
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// PathPrepend lists directories prepended to PATH for every step.
	// Entries may reference environment variables with $NAME syntax and
	// are expanded at run time. This is how installer-provided tool
	// directories become visible to later steps.
	PathPrepend []string `yaml:"path,omitempty" json:"path,omitempty"`

	// Install steps acquire the toolchain: download an installer from a
	// URL, run it, add components. They execute before build steps.
	Install []Step `yaml:"install,omitempty" json:"install,omitempty"`

	// Build steps compile the project, in declared order.
	Build []Step `yaml:"build,omitempty" json:"build,omitempty"`

	// Test steps run after build: test suites, format checks, lints.
	Test []Step `yaml:"test,omitempty" json:"test,omitempty"`

	// Artifacts declares the build outputs to package into archives.
	Artifacts []Artifact `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`

	// Deploy configures publishing an archive to the release host.
	// Nil means the pipeline never deploys.
	Deploy *Deploy `yaml:"deploy,omitempty" json:"deploy,omitempty"`

	// Cache lists directories persisted across runs. Entries may
	// reference environment variables with $NAME syntax.
	Cache []string `yaml:"cache,omitempty" json:"cache,omitempty"`
}

// BranchFilter restricts which branches trigger the pipeline.
// Patterns are exact branch names or path.Match globs.
type BranchFilter struct {
	// Only, when non-empty, lists the branch patterns that trigger the
	// pipeline. All other branches are ignored.
	Only []string `yaml:"only,omitempty" json:"only,omitempty"`

	// Except lists branch patterns that never trigger the pipeline.
	// Evaluated after Only.
	Except []string `yaml:"except,omitempty" json:"except,omitempty"`
}

// Step is a single unit of work in a pipeline phase. Exactly one of Run
// or Download must be set:
//
//   - Run executes a shell command and fails the job on non-zero exit.
//   - Download fetches a URL to a local file (toolchain acquisition).
type Step struct {
	// Name is an optional display name. Defaults to the command or URL.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Run is a shell command executed through the pipeline's shell.
	Run string `yaml:"run,omitempty" json:"run,omitempty"`

	// Download is a URL fetched to the file named by To.
	Download string `yaml:"download,omitempty" json:"download,omitempty"`

	// To is the destination path for a Download step, relative to the
	// working directory.
	To string `yaml:"to,omitempty" json:"to,omitempty"`

	// TimeoutSeconds bounds the step's execution time. Zero means no
	// timeout beyond the job-level context.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeoutSeconds,omitempty"`
}

// DisplayName returns the step's name, falling back to its command or
// download URL when no explicit name was given.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Run != "" {
		return s.Run
	}
	return "download " + s.Download
}

// Validate checks that the step has a well-formed shape.
func (s *Step) Validate() error {
	if s.Run == "" && s.Download == "" {
		return fmt.Errorf("step %q: one of run or download must be set", s.Name)
	}
	if s.Run != "" && s.Download != "" {
		return fmt.Errorf("step %q: run and download are mutually exclusive", s.DisplayName())
	}
	if s.Download != "" && s.To == "" {
		return fmt.Errorf("step %q: download requires a destination (to)", s.DisplayName())
	}
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("step %q: timeout_seconds must not be negative", s.DisplayName())
	}
	return nil
}

// Artifact declares a build output to package. The named file is zipped
// into Archive after the test phase succeeds.
type Artifact struct {
	// Path is the file to package, relative to the working directory.
	Path string `yaml:"path" json:"path"`

	// Archive is the zip file name. Defaults to "<base name>.zip" when
	// empty (e.g. target/release/sp.exe → sp.zip).
	Archive string `yaml:"archive,omitempty" json:"archive,omitempty"`
}

// Validate checks that the artifact declaration is well-formed.
func (a *Artifact) Validate() error {
	if a.Path == "" {
		return fmt.Errorf("artifact: path must not be empty")
	}
	if a.Archive != "" && !strings.HasSuffix(a.Archive, ".zip") {
		return fmt.Errorf("artifact %q: archive %q must end in .zip", a.Path, a.Archive)
	}
	return nil
}

// ArchiveName returns the effective archive file name for the artifact,
// applying the "<base name>.zip" default.
func (a *Artifact) ArchiveName() string {
	if a.Archive != "" {
		return a.Archive
	}
	base := a.Path
	// Handle both separators: pipeline files written for Windows CI
	// commonly use backslashes in artifact paths.
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	return base + ".zip"
}

// Deploy configures publishing a packaged archive to a release host.
type Deploy struct {
	// Provider selects the release host. Only "github" is supported.
	Provider string `yaml:"provider" json:"provider"`

	// Repository is the "owner/name" slug of the target repository.
	Repository string `yaml:"repository" json:"repository"`

	// Release is the release name template. $(tag) expands to the tag
	// name and $(version) to the tag with a leading "v" stripped.
	Release string `yaml:"release,omitempty" json:"release,omitempty"`

	// Artifact is the archive file to upload. Must match the Archive of
	// a declared artifact.
	Artifact string `yaml:"artifact" json:"artifact"`

	// TokenEnv names the environment variable holding the API token.
	// Defaults to GITHUB_TOKEN. The token value itself never appears in
	// the pipeline file.
	TokenEnv string `yaml:"token_env,omitempty" json:"tokenEnv,omitempty"`

	// Force replaces an existing release asset of the same name instead
	// of failing the upload.
	Force bool `yaml:"force,omitempty" json:"force,omitempty"`

	// On gates when the deploy phase runs.
	On DeployGate `yaml:"on,omitempty" json:"on,omitempty"`
}

// DeployGate restricts when the deploy phase executes.
type DeployGate struct {
	// Tag, when true, limits deploys to tag-triggered runs. This is the
	// standard "publish on version tag" CI gate.
	Tag bool `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// ReleaseName renders the release name template for the given tag.
// An empty template defaults to the tag itself.
func (d *Deploy) ReleaseName(tag string) string {
	if d.Release == "" {
		return tag
	}
	name := strings.ReplaceAll(d.Release, "$(tag)", tag)
	name = strings.ReplaceAll(name, "$(version)", strings.TrimPrefix(tag, "v"))
	return name
}

// Validate checks the deploy configuration.
func (d *Deploy) Validate() error {
	if d.Provider != "github" {
		return fmt.Errorf("deploy: unsupported provider %q (valid: github)", d.Provider)
	}
	if d.Repository == "" || !strings.Contains(d.Repository, "/") {
		return fmt.Errorf("deploy: repository must be an owner/name slug, got %q", d.Repository)
	}
	if d.Artifact == "" {
		return fmt.Errorf("deploy: artifact must not be empty")
	}
	return nil
}

// nameRegex validates pipeline names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid pipeline name.
// Valid names contain only alphanumeric characters and hyphens,
// and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("pipeline name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid pipeline name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// Validate checks the whole pipeline definition for structural problems.
// It is called after decoding and defaulting, before any step runs.
//
// Beyond per-field checks, it verifies the one cross-field property a
// pipeline definition can get wrong silently: the deploy section must
// refer to an archive that the packaging phase actually produces.
func (p *Pipeline) Validate() error {
	if p.Version != 0 && p.Version != 1 {
		return fmt.Errorf("unsupported pipeline version %d (supported: 1)", p.Version)
	}
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if p.TagPattern != "" {
		if _, err := regexp.Compile(p.TagPattern); err != nil {
			return fmt.Errorf("invalid tag_pattern: %w", err)
		}
	}
	for i := range p.Install {
		if err := p.Install[i].Validate(); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}
	for i := range p.Build {
		if err := p.Build[i].Validate(); err != nil {
			return fmt.Errorf("build: %w", err)
		}
		if p.Build[i].Download != "" {
			return fmt.Errorf("build: step %q: download steps belong in install", p.Build[i].DisplayName())
		}
	}
	for i := range p.Test {
		if err := p.Test[i].Validate(); err != nil {
			return fmt.Errorf("test: %w", err)
		}
		if p.Test[i].Download != "" {
			return fmt.Errorf("test: step %q: download steps belong in install", p.Test[i].DisplayName())
		}
	}
	for i := range p.Artifacts {
		if err := p.Artifacts[i].Validate(); err != nil {
			return err
		}
	}
	for _, dir := range p.Cache {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("cache: path must not be empty")
		}
	}
	if p.Deploy != nil {
		if err := p.Deploy.Validate(); err != nil {
			return err
		}
		if !p.hasArchive(p.Deploy.Artifact) {
			return fmt.Errorf("deploy: artifact %q does not match any declared archive", p.Deploy.Artifact)
		}
	}
	return nil
}

// hasArchive reports whether any declared artifact produces the named
// archive, accounting for the default archive name rule.
func (p *Pipeline) hasArchive(name string) bool {
	for i := range p.Artifacts {
		if p.Artifacts[i].ArchiveName() == name {
			return true
		}
	}
	return false
}

// RunContext carries the trigger facts and identity of a single job run.
// It is assembled by the CLI (from flags or git detection) and threaded
// through the runner.
type RunContext struct {
	// RunID uniquely identifies this run. Used in container names,
	// log lines, and the artifact staging directory.
	RunID string `json:"runId"`

	// Branch is the branch name the run was triggered for. Empty when
	// the run is tag-triggered only.
	Branch string `json:"branch,omitempty"`

	// Tag is the tag name for tag-triggered runs. Empty otherwise.
	Tag string `json:"tag,omitempty"`

	// WorkDir is the absolute path to the project checkout the job
	// operates on.
	WorkDir string `json:"workDir"`

	// StartedAt is the timestamp when this run began.
	StartedAt time.Time `json:"startedAt"`
}

// IsTagRun reports whether the run was triggered by a tag. Tag runs are
// the only runs eligible for a tag-gated deploy.
func (rc *RunContext) IsTagRun() bool {
	return rc.Tag != ""
}

// StepResult records the outcome of one executed (or skipped) step.
type StepResult struct {
	// Phase is the pipeline section the step belongs to.
	Phase Phase `json:"phase"`

	// Name is the step's display name.
	Name string `json:"name"`

	// Status is the final lifecycle state of the step.
	Status StepStatus `json:"status"`

	// ExitCode is the process exit code for run steps. Zero for
	// succeeded steps, -1 when the process never started.
	ExitCode int `json:"exitCode"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// RunResult aggregates the outcome of a whole job run.
type RunResult struct {
	// Pipeline is the pipeline name.
	Pipeline string `json:"pipeline"`

	// RunID identifies the run.
	RunID string `json:"runId"`

	// Triggered reports whether the trigger filters matched. When
	// false, no steps ran and Steps is empty.
	Triggered bool `json:"triggered"`

	// Reason is a human-readable explanation of the trigger decision.
	Reason string `json:"reason"`

	// Steps holds per-step outcomes in execution order.
	Steps []StepResult `json:"steps,omitempty"`

	// Succeeded reports whether every executed step succeeded.
	Succeeded bool `json:"succeeded"`

	// Duration is the total wall-clock time of the run.
	Duration time.Duration `json:"duration"`
}

// FailedStep returns the first failed step result, or nil when the run
// succeeded (or never triggered).
func (r *RunResult) FailedStep() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// ExitCode defines standard CLI exit codes. These codes allow scripts
// and wrapping CI systems to programmatically determine the outcome of
// a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the pipeline definition was not found
	// or failed validation.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not
	// accessible while container execution was requested.
	ExitDockerNotRunning ExitCode = 3

	// ExitStepFailed indicates a pipeline step exited non-zero. The
	// step's own exit code is surfaced in the error message; the job
	// exit code stays stable for scripting.
	ExitStepFailed ExitCode = 4

	// ExitDeployFailed indicates publishing the artifact to the
	// release host failed.
	ExitDeployFailed ExitCode = 5

	// ExitCacheError indicates the cache store could not be written.
	ExitCacheError ExitCode = 6

	// ExitGitError indicates a git query (branch/tag detection) failed.
	ExitGitError ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
