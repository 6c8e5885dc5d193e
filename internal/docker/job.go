package docker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/pipewright/pipewright/internal/model"
	"github.com/pipewright/pipewright/internal/runner"
)

// workspaceMount is the bind-mount target for the project checkout
// inside a job container. All steps run with this as their working
// directory, so relative artifact and cache paths resolve the same way
// they do for local execution.
const workspaceMount = "/workspace"

// StartJobContainer launches a long-lived container for a pipeline run.
// The container idles (sleep infinity) and individual steps are executed
// into it with docker exec, which keeps installed toolchains available
// across steps — the whole point of running the job in one container
// rather than one per step.
//
// The working directory is bind-mounted read-write at /workspace so
// artifacts and downloads land on the host.
func StartJobContainer(ctx context.Context, pipeline, image string, rc *model.RunContext) (string, error) {
	name := fmt.Sprintf("pipewright-%s-%s", pipeline, rc.RunID)

	args := []string{"run", "-d", "--name", name}
	for k, v := range BuildLabels(pipeline, rc) {
		args = append(args, "--label", k+"="+v)
	}
	args = append(args,
		"-v", rc.WorkDir+":"+workspaceMount,
		"-w", workspaceMount,
		image,
		"sleep", "infinity",
	)

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker run failed for job container %q: %s",
				name, strings.TrimSpace(string(output))),
			err,
		)
	}
	// docker run -d prints the container ID on stdout.
	return strings.TrimSpace(string(output)), nil
}

// RemoveJobContainer force-removes a job container. Called from a defer
// at the end of a run, so a best-effort error is all the caller needs.
func RemoveJobContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove job container %q", containerID),
			err,
		)
	}
	return nil
}

// StepRunner executes pipeline steps inside a running job container via
// docker exec. It implements runner.CommandRunner, so the runner package
// is oblivious to whether steps run locally or in a container.
type StepRunner struct {
	// ContainerID is the job container to exec into.
	ContainerID string
}

// NewStepRunner creates a StepRunner bound to a job container.
func NewStepRunner(containerID string) *StepRunner {
	return &StepRunner{ContainerID: containerID}
}

// Run executes one step command inside the container. Environment
// variables are passed with -e flags; PATH prepends are applied inside
// the container shell, since the container's PATH is unrelated to the
// host's.
func (r *StepRunner) Run(ctx context.Context, spec runner.RunSpec) (int, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	args := []string{"exec", "-w", workspaceMount}
	// Sort for deterministic invocations (and testable arg lists).
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	command := spec.Command
	if len(spec.PathPrepend) > 0 {
		command = fmt.Sprintf("export PATH=%q:$PATH; %s",
			strings.Join(spec.PathPrepend, ":"), command)
	}
	args = append(args, r.ContainerID, "sh", "-c", command)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, fmt.Errorf("step timed out after %s", spec.Timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// docker exec forwards the in-container exit code.
		return exitErr.ExitCode(), fmt.Errorf("command exited with code %d", exitErr.ExitCode())
	}
	return -1, err
}

// ListJobContainers queries the daemon for all containers carrying the
// pipewright management label, including exited ones. The filtering is
// done server-side via a label filter.
func ListJobContainers(ctx context.Context, cli *Client) ([]JobInfo, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	jobs := make([]JobInfo, 0, len(containers))
	for _, c := range containers {
		info, err := ParseLabels(c.Labels)
		if err != nil {
			// Not one of ours despite the filter; skip it.
			continue
		}
		info.ContainerID = c.ID
		if len(c.Names) > 0 {
			info.ContainerName = strings.TrimPrefix(c.Names[0], "/")
		}
		info.Status = c.State
		jobs = append(jobs, *info)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs, nil
}

// PullImage pulls the job image via the docker CLI so its progress
// output reaches the user directly.
func PullImage(ctx context.Context, image string) error {
	cmd := exec.CommandContext(ctx, "docker", "pull", image)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker pull %s failed: %s", image, strings.TrimSpace(string(output))),
			err,
		)
	}
	return nil
}

// WaitForContainer polls until the container is running or the deadline
// passes. docker run -d returns before the container entrypoint is
// necessarily up; the first exec would otherwise race it.
func WaitForContainer(ctx context.Context, cli *Client, containerID string, deadline time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		inspect, err := cli.Inner().ContainerInspect(waitCtx, containerID)
		if err == nil && inspect.State != nil && inspect.State.Running {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return model.WrapCLIError(
				model.ExitDockerNotRunning,
				fmt.Sprintf("job container %q did not start within %s", containerID, deadline),
				waitCtx.Err(),
			)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
