package pool

import (
	"context"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
)

// IConnectionPool owns the connections of a client and decides which node
// serves the next request. All operations are atomic with respect to each
// other.
type IConnectionPool interface {
	// AddConnection creates and inserts connections for the given nodes. If one
	// of the ids is already present, a *common.DuplicateConnectionError is
	// returned and the pool is left unchanged.
	AddConnection(nodes ...NodeDescriptor) ([]*connection.Connection, error)
	// CreateConnection builds a connection without inserting it
	CreateConnection(node NodeDescriptor) (*connection.Connection, error)
	// RemoveConnection removes a connection by id and closes it
	RemoveConnection(conn *connection.Connection) error
	// MarkDead records a failed request against a connection
	MarkDead(conn *connection.Connection)
	// MarkAlive records a successful request against a connection
	MarkAlive(conn *connection.Connection)
	// GetConnection selects the connection for the next attempt
	GetConnection(ctx context.Context, opts GetConnectionOptions) (*connection.Connection, error)
	// Update reconciles the pool with a freshly discovered node list
	Update(nodes []NodeDescriptor) error
	// Empty closes and removes every connection
	Empty() error
	// Connections returns a snapshot of the pool in insertion order
	Connections() []*connection.Connection
	// Size returns the number of connections
	Size() int
}

// NodeFilter decides whether a connection may serve a request
type NodeFilter func(conn *connection.Connection) bool

// Selector picks one connection out of the eligible ones
type Selector func(conns []*connection.Connection) *connection.Connection

// GetConnectionOptions tune a single selection
type GetConnectionOptions struct {
	// Filter defaults to accepting every connection
	Filter NodeFilter
	// Selector defaults to the round-robin cursor of the pool
	Selector Selector
	// Meta is attached to emitted events
	Meta *common.RequestMeta
}
