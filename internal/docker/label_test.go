package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/internal/model"
)

// testRunContext returns a run context with every trigger fact set.
func testRunContext() *model.RunContext {
	return &model.RunContext{
		RunID:     "a1b2c3",
		Branch:    "master",
		Tag:       "v1.2.3",
		WorkDir:   "/src/spawner",
		StartedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

// TestBuildLabelsRoundTrip verifies ParseLabels inverts BuildLabels.
func TestBuildLabelsRoundTrip(t *testing.T) {
	labels := BuildLabels("spawner", testRunContext())

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "spawner", labels[LabelPipeline])
	assert.Equal(t, "2026-08-30T10:00:00Z", labels[LabelStartedAt])

	info, err := ParseLabels(labels)
	require.NoError(t, err)

	assert.Equal(t, "spawner", info.Pipeline)
	assert.Equal(t, "a1b2c3", info.RunID)
	assert.Equal(t, "master", info.Branch)
	assert.Equal(t, "v1.2.3", info.Tag)
	assert.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), info.StartedAt)
}

// TestParseLabelsMissingRequired verifies required labels are enforced
// and all missing keys are reported together.
func TestParseLabelsMissingRequired(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		LabelManagedBy: ManagedByValue,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelPipeline)
	assert.Contains(t, err.Error(), LabelRunID)
}

// TestParseLabelsForeignContainer verifies containers managed by other
// tooling are rejected.
func TestParseLabelsForeignContainer(t *testing.T) {
	_, err := ParseLabels(map[string]string{
		LabelManagedBy: "someone-else",
		LabelPipeline:  "spawner",
		LabelRunID:     "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected")
}

// TestParseLabelsOptionalFields verifies empty branch/tag and a bad
// timestamp degrade instead of failing.
func TestParseLabelsOptionalFields(t *testing.T) {
	info, err := ParseLabels(map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelPipeline:  "spawner",
		LabelRunID:     "x",
		LabelStartedAt: "not-a-timestamp",
	})
	require.NoError(t, err)
	assert.Empty(t, info.Branch)
	assert.Empty(t, info.Tag)
	assert.True(t, info.StartedAt.IsZero())
}
