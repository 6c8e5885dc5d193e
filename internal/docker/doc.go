// Package docker provides container-backed execution for pipeline jobs.
//
// A job run gets one long-lived container with the project checkout
// bind-mounted at /workspace; each pipeline step is executed into it
// with docker exec, so toolchains installed by the install phase stay
// available to later steps. Containers are stamped with pipewright.*
// labels, which the `jobs` command queries to list what is running.
package docker
