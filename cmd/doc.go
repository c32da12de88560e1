// Package cmd implements the command-line interface of dTransport. It
// exposes the client as a small tool to talk to a cluster from the shell.
//
// The package is organized into several subpackages:
//
//   - request: Sends a single request and prints the response
//   - nodes: Sniffs the cluster and prints the connection pool
//   - perf: Benchmarks request patterns against a cluster
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable with the DTRANSPORT_
// prefix (e.g. DTRANSPORT_NODES), .env and .env.local files are loaded on start.
//
// See dtransport -help for a list of all commands.
package cmd
