// Package runner executes a triggered pipeline: cache restore, the
// install/build/test phases in strict order, artifact packaging, the
// tag-gated deploy, and cache save.
//
// Error handling follows standard CI semantics: the first step that
// exits non-zero fails the job, every later step is marked skipped, and
// the external tool's exit code is surfaced in the failure message.
// There are no retries and no partial-failure recovery.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/archive"
	"github.com/pipewright/pipewright/internal/model"
)

// CacheStore persists configured directories across runs. Implemented
// by the cache package; declared here so the runner stays testable with
// fakes.
type CacheStore interface {
	// Restore copies cached entries for the pipeline back into place.
	// Missing entries are not errors (cold build).
	Restore(pipeline string, dirs []string, workDir string) error

	// Save copies the directories into the cache store.
	Save(pipeline string, dirs []string, workDir string) error
}

// Publisher uploads a packaged archive to the release host. Implemented
// by the release package.
type Publisher interface {
	Publish(ctx context.Context, deploy *model.Deploy, tag, archivePath string) error
}

// Job binds a validated pipeline to an execution engine and the run's
// trigger facts. Construct one per run.
type Job struct {
	// Pipeline is the validated, defaulted definition.
	Pipeline *model.Pipeline

	// Context carries the run identity and trigger facts.
	Context *model.RunContext

	// Exec runs step commands — locally or inside a job container.
	Exec CommandRunner

	// Cache persists directories across runs. Nil disables caching.
	Cache CacheStore

	// Publisher uploads the deploy artifact. Nil disables deploys
	// (used by --no-deploy and by pipelines without a deploy section).
	Publisher Publisher

	// Out and Err receive streamed step output. Default to the
	// process's own streams.
	Out io.Writer
	Err io.Writer

	// Log receives verbose progress lines. Nil means silent.
	Log func(format string, args ...interface{})
}

// logf forwards to Log when set.
func (j *Job) logf(format string, args ...interface{}) {
	if j.Log != nil {
		j.Log(format, args...)
	}
}

// Run executes the job and returns the per-step results. The returned
// error, when non-nil, is a model.CLIError carrying the exit code for
// the CLI layer; the result is populated either way so the caller can
// still print a report for failed runs.
func (j *Job) Run(ctx context.Context) (*model.RunResult, error) {
	if j.Out == nil {
		j.Out = os.Stdout
	}
	if j.Err == nil {
		j.Err = os.Stderr
	}

	start := time.Now()
	result := &model.RunResult{
		Pipeline:  j.Pipeline.Name,
		RunID:     j.Context.RunID,
		Triggered: true,
	}

	runErr := j.runPhases(ctx, result)

	result.Succeeded = runErr == nil
	result.Duration = time.Since(start)
	return result, runErr
}

// runPhases drives the fixed phase order. A non-nil return aborts the
// job; the caller records remaining steps as skipped via markSkipped.
func (j *Job) runPhases(ctx context.Context, result *model.RunResult) error {
	j.restoreCache()

	phases := []struct {
		phase model.Phase
		steps []model.Step
	}{
		{model.PhaseInstall, j.Pipeline.Install},
		{model.PhaseBuild, j.Pipeline.Build},
		{model.PhaseTest, j.Pipeline.Test},
	}

	for pi, ph := range phases {
		for si := range ph.steps {
			res := j.runStep(ctx, ph.phase, &ph.steps[si])
			result.Steps = append(result.Steps, res)
			if res.Status == model.StatusFailed {
				j.markSkipped(result, phases[pi].steps[si+1:], ph.phase)
				for _, rest := range phases[pi+1:] {
					j.markSkipped(result, rest.steps, rest.phase)
				}
				return model.WrapCLIError(model.ExitStepFailed,
					fmt.Sprintf("step %q failed", res.Name),
					fmt.Errorf("exit code %d", res.ExitCode))
			}
		}
	}

	if err := j.packageArtifacts(result); err != nil {
		return err
	}

	if err := j.deploy(ctx, result); err != nil {
		return err
	}

	j.saveCache()
	return nil
}

// runStep executes one install/build/test step and records its outcome.
func (j *Job) runStep(ctx context.Context, phase model.Phase, step *model.Step) model.StepResult {
	res := model.StepResult{
		Phase:  phase,
		Name:   step.DisplayName(),
		Status: model.StatusRunning,
	}
	start := time.Now()
	j.logf("[%s] %s", phase, res.Name)

	var err error
	if step.Download != "" {
		err = downloadFile(ctx, step.Download, j.Context.WorkDir, step.To,
			time.Duration(step.TimeoutSeconds)*time.Second)
		if err == nil {
			res.ExitCode = 0
		} else {
			res.ExitCode = -1
		}
	} else {
		res.ExitCode, err = j.Exec.Run(ctx, RunSpec{
			Command:     step.Run,
			Dir:         j.Context.WorkDir,
			Env:         j.Pipeline.Environment,
			PathPrepend: j.Pipeline.PathPrepend,
			Shell:       j.Pipeline.Shell,
			Stdout:      j.Out,
			Stderr:      j.Err,
			Timeout:     time.Duration(step.TimeoutSeconds) * time.Second,
		})
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.Status = model.StatusFailed
		fmt.Fprintf(j.Err, "step %q failed: %v\n", res.Name, err)
	} else {
		res.Status = model.StatusSucceeded
	}
	return res
}

// markSkipped appends skipped results for steps that never ran because
// an earlier step failed.
func (j *Job) markSkipped(result *model.RunResult, steps []model.Step, phase model.Phase) {
	for i := range steps {
		result.Steps = append(result.Steps, model.StepResult{
			Phase:  phase,
			Name:   steps[i].DisplayName(),
			Status: model.StatusSkipped,
		})
	}
}

// packageArtifacts zips each declared artifact into its archive in the
// working directory. A missing artifact file fails the job: the build
// claimed success but did not produce its output.
func (j *Job) packageArtifacts(result *model.RunResult) error {
	for i := range j.Pipeline.Artifacts {
		art := &j.Pipeline.Artifacts[i]
		res := model.StepResult{
			Phase: model.PhasePackage,
			Name:  fmt.Sprintf("archive %s", art.ArchiveName()),
		}
		start := time.Now()
		j.logf("[package] %s → %s", art.Path, art.ArchiveName())

		err := archive.Package(j.Context.WorkDir, art)
		res.Duration = time.Since(start)
		if err != nil {
			res.Status = model.StatusFailed
			res.ExitCode = -1
			result.Steps = append(result.Steps, res)
			return model.WrapCLIError(model.ExitStepFailed,
				fmt.Sprintf("packaging %s failed", art.ArchiveName()), err)
		}
		res.Status = model.StatusSucceeded
		result.Steps = append(result.Steps, res)
	}
	return nil
}

// deploy publishes the configured archive when the gate allows it.
// Non-tag runs with a tag gate record a skipped step rather than an
// error: not deploying is the correct outcome, not a failure.
func (j *Job) deploy(ctx context.Context, result *model.RunResult) error {
	d := j.Pipeline.Deploy
	if d == nil {
		return nil
	}

	res := model.StepResult{
		Phase: model.PhaseDeploy,
		Name:  fmt.Sprintf("publish %s", d.Artifact),
	}

	if d.On.Tag && !j.Context.IsTagRun() {
		j.logf("[deploy] skipped: not a tag run")
		res.Status = model.StatusSkipped
		result.Steps = append(result.Steps, res)
		return nil
	}
	if j.Publisher == nil {
		j.logf("[deploy] skipped: deploy disabled")
		res.Status = model.StatusSkipped
		result.Steps = append(result.Steps, res)
		return nil
	}

	start := time.Now()
	j.logf("[deploy] %s to %s release %q", d.Artifact, d.Provider, d.ReleaseName(j.Context.Tag))

	archivePath := filepath.Join(j.Context.WorkDir, d.Artifact)
	err := j.Publisher.Publish(ctx, d, j.Context.Tag, archivePath)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = model.StatusFailed
		res.ExitCode = -1
		result.Steps = append(result.Steps, res)
		return model.WrapCLIError(model.ExitDeployFailed, "deploy failed", err)
	}
	res.Status = model.StatusSucceeded
	result.Steps = append(result.Steps, res)
	return nil
}

// restoreCache restores cached directories. Failures degrade to a cold
// build with a warning: a broken cache must never fail the job.
func (j *Job) restoreCache() {
	if j.Cache == nil || len(j.Pipeline.Cache) == 0 {
		return
	}
	j.logf("[cache] restoring %d path(s)", len(j.Pipeline.Cache))
	if err := j.Cache.Restore(j.Pipeline.Name, j.Pipeline.Cache, j.Context.WorkDir); err != nil {
		fmt.Fprintf(j.Err, "warning: cache restore failed: %v\n", err)
	}
}

// saveCache persists cached directories after a fully successful job.
// Save failures are warnings for the same reason restore failures are.
func (j *Job) saveCache() {
	if j.Cache == nil || len(j.Pipeline.Cache) == 0 {
		return
	}
	j.logf("[cache] saving %d path(s)", len(j.Pipeline.Cache))
	if err := j.Cache.Save(j.Pipeline.Name, j.Pipeline.Cache, j.Context.WorkDir); err != nil {
		fmt.Fprintf(j.Err, "warning: cache save failed: %v\n", err)
	}
}
