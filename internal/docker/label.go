package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/pipewright/pipewright/internal/model"
)

// Label key constants define the Docker label keys stamped on job
// containers. Labels are the only state pipewright keeps about running
// jobs — the `jobs` command reconstructs everything from them.
//
// All keys share the "pipewright." prefix to avoid collisions with
// labels set by other tools.
const (
	// LabelPrefix is the common prefix for all pipewright labels.
	LabelPrefix = "pipewright."

	// LabelManagedBy identifies containers started by pipewright.
	// Key: "pipewright.managed-by", value: always "pipewright".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelPipeline stores the pipeline name the job belongs to.
	LabelPipeline = LabelPrefix + "pipeline"

	// LabelRunID stores the unique run identifier.
	LabelRunID = LabelPrefix + "run-id"

	// LabelBranch stores the branch the run was triggered for. May be
	// empty for pure tag runs.
	LabelBranch = LabelPrefix + "branch"

	// LabelTag stores the tag for tag-triggered runs. May be empty.
	LabelTag = LabelPrefix + "tag"

	// LabelStartedAt stores the RFC3339 timestamp of job start.
	LabelStartedAt = LabelPrefix + "started-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "pipewright"

// JobInfo describes one pipewright job container, reconstructed from
// its labels plus runtime container state.
type JobInfo struct {
	// ContainerID is the Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable container name.
	ContainerName string `json:"containerName"`

	// Pipeline is the owning pipeline name.
	Pipeline string `json:"pipeline"`

	// RunID is the job's run identifier.
	RunID string `json:"runId"`

	// Branch and Tag are the trigger facts the job was started with.
	Branch string `json:"branch,omitempty"`
	Tag    string `json:"tag,omitempty"`

	// StartedAt is when the job container was started.
	StartedAt time.Time `json:"startedAt"`

	// Status is the Docker container status string.
	Status string `json:"status"`
}

// BuildLabels constructs the label map for a job container from the
// run context. The inverse is ParseLabels.
func BuildLabels(pipeline string, rc *model.RunContext) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelPipeline:  pipeline,
		LabelRunID:     rc.RunID,
		LabelBranch:    rc.Branch,
		LabelTag:       rc.Tag,
		LabelStartedAt: rc.StartedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs a JobInfo from container labels. Container
// identity and status are filled in by the caller from the container
// list entry.
//
// Required labels: managed-by, pipeline, run-id. Branch and tag are
// legitimately empty depending on the trigger, and a malformed
// started-at degrades to the zero time rather than failing: a listing
// command should not refuse to show a container over one bad label.
func ParseLabels(labels map[string]string) (*JobInfo, error) {
	var missing []string
	for _, key := range []string{LabelManagedBy, LabelPipeline, LabelRunID} {
		if labels[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required labels: %s", strings.Join(missing, ", "))
	}
	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf("unexpected %s value %q", LabelManagedBy, labels[LabelManagedBy])
	}

	info := &JobInfo{
		Pipeline: labels[LabelPipeline],
		RunID:    labels[LabelRunID],
		Branch:   labels[LabelBranch],
		Tag:      labels[LabelTag],
	}
	if ts := labels[LabelStartedAt]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			info.StartedAt = parsed
		}
	}
	return info, nil
}
