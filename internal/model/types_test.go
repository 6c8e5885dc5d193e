package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseStepStatus verifies round-tripping of valid statuses and
// rejection of unknown ones.
func TestParseStepStatus(t *testing.T) {
	for _, valid := range []string{"pending", "running", "succeeded", "failed", "skipped"} {
		status, err := ParseStepStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, status.String())
		assert.True(t, status.IsValid())
	}

	_, err := ParseStepStatus("cancelled")
	assert.Error(t, err)
}

// TestStepValidate covers the mutually-exclusive run/download shape rules.
func TestStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{
			name: "run step is valid",
			step: Step{Run: "cargo build --release"},
		},
		{
			name: "download with destination is valid",
			step: Step{Download: "https://win.rustup.rs/", To: "rustup-init.exe"},
		},
		{
			name:    "empty step is rejected",
			step:    Step{},
			wantErr: "one of run or download",
		},
		{
			name:    "run and download together are rejected",
			step:    Step{Run: "x", Download: "https://example.com"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "download without destination is rejected",
			step:    Step{Download: "https://example.com"},
			wantErr: "requires a destination",
		},
		{
			name:    "negative timeout is rejected",
			step:    Step{Run: "x", TimeoutSeconds: -1},
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// TestArtifactArchiveName verifies the default archive naming rule:
// the base name of the artifact path with its extension replaced by .zip.
func TestArtifactArchiveName(t *testing.T) {
	tests := []struct {
		artifact Artifact
		want     string
	}{
		{Artifact{Path: "target/release/sp.exe"}, "sp.zip"},
		{Artifact{Path: `target\release\sp.exe`}, "sp.zip"},
		{Artifact{Path: "bin/tool"}, "tool.zip"},
		{Artifact{Path: "bin/tool.exe", Archive: "custom.zip"}, "custom.zip"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.artifact.ArchiveName(), "path %q", tt.artifact.Path)
	}
}

// TestDeployReleaseName verifies template expansion for release names.
func TestDeployReleaseName(t *testing.T) {
	d := &Deploy{Release: "spawner-$(tag)"}
	assert.Equal(t, "spawner-v1.2.3", d.ReleaseName("v1.2.3"))

	d = &Deploy{Release: "release $(version)"}
	assert.Equal(t, "release 1.2.3", d.ReleaseName("v1.2.3"))

	// Empty template falls back to the tag itself.
	d = &Deploy{}
	assert.Equal(t, "v1.2.3", d.ReleaseName("v1.2.3"))
}

// TestValidateName checks the pipeline name character rules.
func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("spawner"))
	assert.NoError(t, ValidateName("my-pipeline-2"))
	assert.NoError(t, ValidateName("x"))

	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("-leading"))
	assert.Error(t, ValidateName("trailing-"))
	assert.Error(t, ValidateName("has space"))
}

// validPipeline returns a minimal pipeline that passes Validate, for
// use as a mutation base in validation tests.
func validPipeline() *Pipeline {
	return &Pipeline{
		Name:  "spawner",
		Build: []Step{{Run: "cargo build --release"}},
		Artifacts: []Artifact{
			{Path: "target/release/sp.exe"},
		},
		Deploy: &Deploy{
			Provider:   "github",
			Repository: "acme/spawner",
			Artifact:   "sp.zip",
			On:         DeployGate{Tag: true},
		},
	}
}

// TestPipelineValidate covers the whole-definition checks, including the
// deploy/artifact cross-reference.
func TestPipelineValidate(t *testing.T) {
	t.Run("valid pipeline passes", func(t *testing.T) {
		assert.NoError(t, validPipeline().Validate())
	})

	t.Run("unsupported version", func(t *testing.T) {
		p := validPipeline()
		p.Version = 2
		assert.ErrorContains(t, p.Validate(), "unsupported pipeline version")
	})

	t.Run("bad tag pattern", func(t *testing.T) {
		p := validPipeline()
		p.TagPattern = "["
		assert.ErrorContains(t, p.Validate(), "invalid tag_pattern")
	})

	t.Run("deploy artifact must match a declared archive", func(t *testing.T) {
		p := validPipeline()
		p.Deploy.Artifact = "other.zip"
		assert.ErrorContains(t, p.Validate(), "does not match any declared archive")
	})

	t.Run("deploy artifact matches explicit archive name", func(t *testing.T) {
		p := validPipeline()
		p.Artifacts[0].Archive = "other.zip"
		p.Deploy.Artifact = "other.zip"
		assert.NoError(t, p.Validate())
	})

	t.Run("download steps are rejected outside install", func(t *testing.T) {
		p := validPipeline()
		p.Test = []Step{{Download: "https://example.com", To: "f"}}
		assert.ErrorContains(t, p.Validate(), "download steps belong in install")
	})

	t.Run("empty cache path", func(t *testing.T) {
		p := validPipeline()
		p.Cache = []string{"target", "  "}
		assert.ErrorContains(t, p.Validate(), "cache: path must not be empty")
	})
}

// TestRunResultFailedStep verifies first-failure lookup.
func TestRunResultFailedStep(t *testing.T) {
	r := &RunResult{
		Steps: []StepResult{
			{Name: "a", Status: StatusSucceeded},
			{Name: "b", Status: StatusFailed, ExitCode: 101},
			{Name: "c", Status: StatusSkipped},
		},
	}

	failed := r.FailedStep()
	require.NotNil(t, failed)
	assert.Equal(t, "b", failed.Name)
	assert.Equal(t, 101, failed.ExitCode)

	assert.Nil(t, (&RunResult{}).FailedStep())
}

// TestCLIError verifies message formatting and unwrapping.
func TestCLIError(t *testing.T) {
	base := assert.AnError
	err := WrapCLIError(ExitStepFailed, "step failed", base)

	assert.Contains(t, err.Error(), "step failed")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitStepFailed, err.Code)

	plain := NewCLIError(ExitConfigError, "no pipeline file")
	assert.Equal(t, "no pipeline file", plain.Error())
	assert.Nil(t, plain.Unwrap())
}
