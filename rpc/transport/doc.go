// Package transport sends requests to the cluster. It picks a node from the
// connection pool, encodes the request, retries on other nodes when a node
// cannot be reached and keeps the pool in sync with the cluster topology.
//
// The package focuses on:
//   - The request state machine (attempts, retries, failover)
//   - Request and response compression
//   - Sniffing (on start, periodically and after connection faults)
//   - Request metrics in the Prometheus text format
//
// Key Components:
//
//   - ITransport: Interface of the transport used by the client package.
//
//   - Transport: Runs up to MaxRetries+1 attempts per request. Each attempt is
//     bounded by the request timeout. Connection failures and timeouts mark
//     the node dead and move on to the next node; a response with a non 2xx
//     status code ends the request with a ResponseError (unless the status
//     is listed in RetryOnStatus). Cancelling the request context aborts the
//     request without blaming the node.
//
//   - Sniff: GET /_nodes/_all/http, converted with pool.NodesToHost and
//     applied with pool.Update. Concurrent sniffs are collapsed into one.
//     Sniff failures are logged and emitted as events, they never fail a
//     request.
//
// Thread Safety:
//
//	A Transport is safe for concurrent use. Background goroutines are owned by
//	the transport and stopped by Close.
package transport
