// Package common provides core data structures and utilities shared across
// the cluster transport. It defines the client configuration, the error
// taxonomy, per request metadata and the event bus used by the other packages.
//
// The package focuses on:
//   - Configuration structures for the client and its logging
//   - A typed error taxonomy that tells connectivity failures (retried on
//     another node) apart from semantic failures (returned immediately)
//   - An explicit event bus that a client shares with its child clients
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - ClientConfig: Plain value configuration of a client (nodes, retries,
//     timeouts, sniffing, resurrection, compression). Validate fills in the
//     defaults and rejects invalid setups with a ConfigurationError.
//
//   - Errors: ConfigurationError, ConnectionError, TimeoutError,
//     NoLivingConnectionsError, SerializationError, DeserializationError,
//     ResponseError, RequestAbortedError and DuplicateConnectionError. All are
//     pointer types and can be matched with errors.As.
//
//   - RequestMeta: Diagnostic state of one request (id, attempts, node used).
//
//   - EventBus: Synchronous publish/subscribe channel for the request, response,
//     sniff and resurrect events.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger factory, optionally writing to a rotating log file.
package common
