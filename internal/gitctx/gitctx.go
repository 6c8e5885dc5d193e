// Package gitctx detects the git facts a pipeline run is triggered by:
// the checked-out branch and, for release builds, the tag pointing at
// HEAD.
//
// It shells out to the git CLI rather than using a Go git library: the
// queries are two trivial plumbing commands, and the tool already runs
// in environments where git is the ground truth for the checkout state.
// When the working directory is not a git repository the queries degrade
// to empty values, so pipelines can still be run against plain exported
// trees by passing --branch/--tag explicitly.
package gitctx

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/pipewright/pipewright/internal/model"
)

// IsRepo reports whether dir is inside a git working tree.
func IsRepo(dir string) bool {
	out, err := runGit(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// CurrentBranch returns the checked-out branch name at dir.
// A detached HEAD (the normal state for tag builds on CI checkouts)
// yields an empty branch, not an error.
func CurrentBranch(dir string) (string, error) {
	out, err := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", nil
	}
	return branch, nil
}

// CurrentTag returns the tag pointing exactly at HEAD, or an empty
// string when HEAD is not tagged. Only exact matches count: a commit
// that is merely a descendant of a tag is not a tag build.
func CurrentTag(dir string) string {
	out, err := runGit(dir, "describe", "--tags", "--exact-match")
	if err != nil {
		// Non-zero exit means no tag at HEAD. Other failures (no git,
		// not a repo) equally mean "not a tag build" for our purposes.
		return ""
	}
	return strings.TrimSpace(out)
}

// runGit executes a git command with the given arguments against dir.
//
// It captures stdout and stderr separately. On success it returns the
// stdout output; on failure it returns a model.CLIError with
// ExitGitError including the stderr output for debugging.
//
// dir is passed via the -C flag so git changes directory itself instead
// of the process working directory being mutated.
func runGit(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", model.WrapCLIError(
			model.ExitGitError,
			fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())),
			err,
		)
	}
	return stdout.String(), nil
}
