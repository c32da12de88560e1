// Package rpc provides the client side runtime for talking to a cluster of
// HTTP nodes. It spreads requests over the living nodes, retries failed
// requests on other nodes and keeps the node list in sync with the cluster.
//
// The package is organized into several subpackages:
//
//   - common: Configuration, the error taxonomy, request metadata, the event
//     bus and logging shared by all other packages.
//
//   - connection: One node endpoint with its own http agent, liveness state
//     and request statistics.
//
//   - pool: Connection pools (round robin with resurrection of dead nodes and
//     a single node cloud pool), node descriptor parsing and selectors.
//
//   - serializer: JSON encoding of request payloads and hardened decoding of
//     response bodies.
//
//   - transport: The request state machine (retries, timeouts, compression,
//     response handling) and cluster sniffing.
//
//   - client: Wires configuration, serializer, pool and transport together
//     and supports child clients and plugins.
//
//   - clustertest: Fake nodes backed by httptest servers for tests.
package rpc
