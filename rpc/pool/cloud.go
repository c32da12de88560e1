package pool

import (
	"context"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
)

// CloudConnectionPool holds exactly one connection, the load balancer in
// front of a hosted cluster. Selection always returns that connection.
type CloudConnectionPool struct {
	*BasePool
}

// NewCloudConnectionPool creates an empty single connection pool
func NewCloudConnectionPool(cfg Config) *CloudConnectionPool {
	return &CloudConnectionPool{BasePool: NewBasePool(cfg)}
}

func (p *CloudConnectionPool) AddConnection(nodes ...NodeDescriptor) ([]*connection.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns)+len(nodes) > 1 {
		return nil, common.NewConfigurationError("the cloud connection pool holds exactly one connection")
	}
	return p.addLocked(nodes)
}

func (p *CloudConnectionPool) GetConnection(_ context.Context, opts GetConnectionOptions) (*connection.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil, &common.NoLivingConnectionsError{Meta: opts.Meta}
	}
	return p.conns[0], nil
}

func (p *CloudConnectionPool) Update(nodes []NodeDescriptor) error {
	if len(nodes) > 1 {
		return common.NewConfigurationError("the cloud connection pool holds exactly one connection, got %d nodes", len(nodes))
	}
	return p.BasePool.Update(nodes)
}
