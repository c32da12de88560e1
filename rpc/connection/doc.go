// Package connection implements the Connection entity: one addressable node
// of the cluster with its identity, its liveness state machine and the HTTP
// agent that keeps sockets to the node alive.
//
// A connection starts alive. MarkDead increments the consecutive failure
// count and schedules the earliest retry with an exponential backoff,
// MarkAlive resets both. The connection never decides on its own when to
// retry or which node to pick; that is the job of the pool package.
package connection
