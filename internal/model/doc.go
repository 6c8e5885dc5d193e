// Package model defines the domain types and value objects for the
// pipewright CLI.
//
// This package contains pure data structures with no external dependencies.
// The central entity is Pipeline — the decoded pipeline definition file —
// together with the transient run records (RunContext, RunResult,
// StepResult) produced while a job executes.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
