// Package cli — jobs.go implements the "pipewright jobs" command.
//
// The jobs command lists job containers left behind by --container runs
// by querying Docker for containers with the "pipewright.managed-by"
// label. A crashed run can leave its container behind; this command
// makes those visible so they can be cleaned up with docker rm.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/docker"
)

// jobsFlags holds the flag values for the jobs command.
type jobsFlags struct {
	// pipeline filters the listing to one pipeline name. Empty shows all.
	pipeline string
}

// NewJobsCommand creates the "jobs" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewJobsCommand() *cobra.Command {
	flags := &jobsFlags{}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List pipewright job containers",
		Long: `List Docker containers started by pipewright --container runs.

Each job container carries labels identifying its pipeline, run ID, and
trigger facts. Containers from crashed runs show up here until removed.

Examples:
  pipewright jobs
  pipewright jobs --pipeline spawner
  pipewright jobs --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.pipeline, "pipeline", "", "Only show jobs for this pipeline")

	return cmd
}

// runJobs is the main logic function for the jobs command.
func runJobs(ctx context.Context, flags *jobsFlags) error {
	// Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	jobs, err := docker.ListJobContainers(ctx, cli)
	if err != nil {
		return err // ListJobContainers already returns CLIError
	}
	VerboseLog("Found %d job container(s)", len(jobs))

	if flags.pipeline != "" {
		filtered := make([]docker.JobInfo, 0, len(jobs))
		for _, job := range jobs {
			if job.Pipeline == flags.pipeline {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	if IsJSONOutput() {
		// An empty list marshals as [] rather than null.
		if jobs == nil {
			jobs = []docker.JobInfo{}
		}
		data, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(jobs) == 0 {
		fmt.Println("No job containers found.")
		return nil
	}

	fmt.Printf("%-14s %-20s %-10s %-12s %-10s %s\n",
		"RUN ID", "PIPELINE", "BRANCH", "TAG", "STATUS", "STARTED")
	for _, job := range jobs {
		started := ""
		if !job.StartedAt.IsZero() {
			started = job.StartedAt.Format(time.RFC3339)
		}
		fmt.Printf("%-14s %-20s %-10s %-12s %-10s %s\n",
			job.RunID, job.Pipeline, orDash(job.Branch), orDash(job.Tag), job.Status, started)
	}
	return nil
}

// orDash substitutes "-" for an empty table cell.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
