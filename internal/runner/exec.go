package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// RunSpec describes one command execution: the command line, where it
// runs, and which environment it sees. Stdout/Stderr are streamed to the
// given writers so the user sees step output live, CI-style.
type RunSpec struct {
	// Command is the shell command line to execute.
	Command string

	// Dir is the working directory. For container execution this is the
	// path inside the container.
	Dir string

	// Env holds explicit environment variables layered on top of the
	// base environment.
	Env map[string]string

	// PathPrepend lists directories prepended to PATH. Entries may
	// reference environment variables with $NAME syntax.
	PathPrepend []string

	// Shell overrides the interpreter. Empty means the platform default
	// ("sh -c", or "cmd /C" on Windows).
	Shell string

	// Stdout and Stderr receive the process output streams.
	Stdout io.Writer
	Stderr io.Writer

	// Timeout bounds the execution time. Zero means no per-step bound.
	Timeout time.Duration
}

// CommandRunner executes a single step command and reports its exit
// code. Implementations exist for the local host (ShellRunner) and for
// Docker job containers (docker.StepRunner).
//
// The returned exit code is meaningful only when err is nil or the
// error wraps a non-zero process exit; -1 means the process never
// produced an exit status (start failure, timeout).
type CommandRunner interface {
	Run(ctx context.Context, spec RunSpec) (int, error)
}

// ShellRunner executes step commands as child processes on the host,
// through the platform shell. This is the default execution engine.
type ShellRunner struct{}

// NewShellRunner creates a ShellRunner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes the command through the shell and waits for it to exit.
// Non-zero exits are returned as (code, error) so callers can both
// fail fast and surface the external tool's exit code.
func (r *ShellRunner) Run(ctx context.Context, spec RunSpec) (int, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	bin, flag := shellInvocation(spec.Shell)
	// #nosec G204 — the command comes from the user's own pipeline file
	cmd := exec.CommandContext(ctx, bin, flag, spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env, spec.PathPrepend)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	// Distinguish a timeout/cancellation from an ordinary failure so the
	// report can say which one happened.
	if ctx.Err() != nil {
		return -1, fmt.Errorf("step timed out after %s", spec.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), fmt.Errorf("command exited with code %d", exitErr.ExitCode())
	}
	// Start failure: shell missing, bad working directory, etc.
	return -1, err
}

// shellInvocation returns the interpreter binary and its command flag.
// A custom shell string like "bash -c" is split into binary + flag.
func shellInvocation(shell string) (string, string) {
	if shell != "" {
		if fields := strings.Fields(shell); len(fields) >= 2 {
			return fields[0], fields[1]
		}
		return shell, "-c"
	}
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}

// buildEnv merges the process environment with the pipeline's explicit
// variables and PATH prepends. Explicit variables win over inherited
// ones; PATH prepend entries are $NAME-expanded against the merged set
// so "$HOME/.cargo/bin" resolves as expected.
func buildEnv(extra map[string]string, pathPrepend []string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range extra {
		merged[k] = v
	}

	if len(pathPrepend) > 0 {
		lookup := func(name string) string { return merged[name] }
		parts := make([]string, 0, len(pathPrepend)+1)
		for _, p := range pathPrepend {
			parts = append(parts, os.Expand(p, lookup))
		}
		if current := merged["PATH"]; current != "" {
			parts = append(parts, current)
		}
		merged["PATH"] = strings.Join(parts, string(os.PathListSeparator))
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}
