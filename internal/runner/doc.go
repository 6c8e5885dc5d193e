// Package runner executes triggered pipeline jobs.
//
// A Job drives the fixed phase order — cache restore, install, build,
// test, package, deploy, cache save — over a CommandRunner execution
// engine. The engine is the host shell by default; the docker package
// provides a container-backed implementation with the same interface.
//
// Failure semantics are standard CI fail-fast: the first step exiting
// non-zero aborts the job, remaining steps are recorded as skipped, and
// the step's exit code is surfaced. Cache problems never fail a job.
package runner
