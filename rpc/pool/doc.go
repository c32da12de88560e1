// Package pool owns the connections of a client and implements node
// selection.
//
// Key Components:
//
//   - IConnectionPool: Contract the transport depends on.
//
//   - BasePool: Membership management shared by all strategies (add, remove,
//     update, empty). It does not track liveness and cannot select a node.
//
//   - ConnectionPool: Round-robin over the alive connections with a single
//     cursor shared by all requests. When no connection is alive, dead
//     connections whose backoff elapsed are resurrected using the configured
//     strategy (ping, optimistic or none).
//
//   - CloudConnectionPool: Exactly one connection, used for hosted clusters
//     that sit behind a load balancer.
//
//   - NodesToHost / URLToHost: Turn sniff responses and configured urls into
//     node descriptors.
//
// Update reconciles the pool with a discovered node list by id first:
// connections that are still present keep their liveness state, vanished
// ones are closed and removed, new ones are added. If a known url shows up
// under a new id, the known id is kept. Calling Update twice with the same
// list does not change the pool the second time.
//
// Thread Safety:
//
//	Every operation runs under the pool mutex. Lock order is pool before
//	connection. Ping probes during resurrection run without the pool lock.
package pool
