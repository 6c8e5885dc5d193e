package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/model"
)

// pipeline builds a defaulted pipeline with the given branch filters,
// using the stock semver tag pattern.
func pipeline(only, except []string) *model.Pipeline {
	p := &model.Pipeline{
		Name:     "spawner",
		Branches: model.BranchFilter{Only: only, Except: except},
	}
	config.ApplyDefaults(p)
	return p
}

// TestEvaluate_SemverTag verifies that a semantic-version tag triggers
// the run even when the branch would not, and that the decision is
// marked as a tag run.
func TestEvaluate_SemverTag(t *testing.T) {
	p := pipeline([]string{"master"}, nil)

	d, err := Evaluate(p, "feature-x", "v1.2.3")
	require.NoError(t, err)
	assert.True(t, d.Run)
	assert.True(t, d.TagRun)
}

// TestEvaluate_NonSemverTag verifies that a tag not matching the pattern
// falls back to branch evaluation instead of triggering.
func TestEvaluate_NonSemverTag(t *testing.T) {
	p := pipeline([]string{"master"}, nil)

	// Tag doesn't match, branch does: a plain branch run.
	d, err := Evaluate(p, "master", "nightly-2026-08-30")
	require.NoError(t, err)
	assert.True(t, d.Run)
	assert.False(t, d.TagRun)

	// Neither matches: skip.
	d, err = Evaluate(p, "feature-x", "v1.2")
	require.NoError(t, err)
	assert.False(t, d.Run)
}

// TestEvaluate_BranchFilters covers only/except semantics.
func TestEvaluate_BranchFilters(t *testing.T) {
	tests := []struct {
		name   string
		only   []string
		except []string
		branch string
		want   bool
	}{
		{"only match", []string{"master"}, nil, "master", true},
		{"only mismatch", []string{"master"}, nil, "develop", false},
		{"empty only allows all", nil, nil, "anything", true},
		{"except denies", nil, []string{"wip-*"}, "wip-thing", false},
		{"except glob miss", nil, []string{"wip-*"}, "master", true},
		{"only glob", []string{"release/*"}, nil, "release/1.0", true},
		{"except beats only", []string{"*"}, []string{"master"}, "master", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Evaluate(pipeline(tt.only, tt.except), tt.branch, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Run, d.Reason)
		})
	}
}

// TestEvaluate_NoTriggerInput verifies that a run with neither branch
// nor tag is skipped with an explanatory reason.
func TestEvaluate_NoTriggerInput(t *testing.T) {
	d, err := Evaluate(pipeline(nil, nil), "", "")
	require.NoError(t, err)
	assert.False(t, d.Run)
	assert.NotEmpty(t, d.Reason)
}

// TestEvaluate_CustomTagPattern verifies a non-default pattern is honored.
func TestEvaluate_CustomTagPattern(t *testing.T) {
	p := pipeline(nil, nil)
	p.TagPattern = `^release-\d+$`

	d, err := Evaluate(p, "", "release-42")
	require.NoError(t, err)
	assert.True(t, d.TagRun)

	d, err = Evaluate(p, "", "v1.2.3")
	require.NoError(t, err)
	assert.False(t, d.Run)
}
