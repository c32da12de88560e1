package transport

import (
	"context"

	"github.com/ValentinKolb/dTransport/rpc/pool"
)

// ITransport sends requests to the cluster and keeps the pool in sync with
// the cluster topology
type ITransport interface {
	// Request sends one logical request, retrying on other nodes when a node
	// cannot be reached
	Request(ctx context.Context, params Params, opts *Options) (*Result, error)
	// Sniff discovers the nodes of the cluster and updates the pool
	Sniff(ctx context.Context, reason string) ([]pool.NodeDescriptor, error)
	// Close stops all background sniffing. The pool is not emptied.
	Close() error
}
