package gitctx

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a git repository with one commit in a temp directory.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	git("init", "-b", "master")
	git("config", "user.email", "ci@example.com")
	git("config", "user.name", "ci")
	git("commit", "--allow-empty", "-m", "initial")
	return dir
}

// TestIsRepo distinguishes repositories from plain directories.
func TestIsRepo(t *testing.T) {
	dir := initRepo(t)
	assert.True(t, IsRepo(dir))
	assert.False(t, IsRepo(t.TempDir()))
}

// TestCurrentBranch reads the checked-out branch and returns empty for
// a detached HEAD.
func TestCurrentBranch(t *testing.T) {
	dir := initRepo(t)

	branch, err := CurrentBranch(dir)
	require.NoError(t, err)
	assert.Equal(t, "master", branch)

	// Detach HEAD; branch detection should degrade to empty.
	cmd := exec.Command("git", "-C", dir, "checkout", "--detach")
	require.NoError(t, cmd.Run())

	branch, err = CurrentBranch(dir)
	require.NoError(t, err)
	assert.Empty(t, branch)
}

// TestCurrentTag returns the exact tag at HEAD and empty otherwise.
func TestCurrentTag(t *testing.T) {
	dir := initRepo(t)

	assert.Empty(t, CurrentTag(dir), "untagged HEAD has no tag")

	cmd := exec.Command("git", "-C", dir, "tag", "v1.2.3")
	require.NoError(t, cmd.Run())

	assert.Equal(t, "v1.2.3", CurrentTag(dir))

	// A new commit after the tag is no longer an exact match.
	cmd = exec.Command("git", "-C", dir, "commit", "--allow-empty", "-m", "later")
	require.NoError(t, cmd.Run())

	assert.Empty(t, CurrentTag(dir))
}
