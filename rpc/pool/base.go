package pool

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger(common.LoggerPool)

const (
	// DefaultResurrectTimeout is the backoff base of a dead connection
	DefaultResurrectTimeout = 60 * time.Second
	// DefaultResurrectCutoff caps the backoff exponent
	DefaultResurrectCutoff = 5
)

// Config holds the settings shared by all pool strategies
type Config struct {
	// Auth is applied to connections whose url carries no credentials
	Auth *common.Auth
	// Headers are sent with every request of every connection
	Headers   http.Header
	TLSConfig *tls.Config
	Proxy     *url.URL

	ResurrectStrategy string
	PingTimeout       time.Duration
	// SniffEnabled makes the pool track dead connections regardless of its size
	SniffEnabled bool

	ResurrectTimeout time.Duration
	ResurrectCutoff  int

	Events *common.EventBus
	// Clock defaults to time.Now
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.ResurrectStrategy == "" {
		c.ResurrectStrategy = common.ResurrectPing
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = common.DefaultPingTimeout
	}
	if c.ResurrectTimeout <= 0 {
		c.ResurrectTimeout = DefaultResurrectTimeout
	}
	if c.ResurrectCutoff <= 0 {
		c.ResurrectCutoff = DefaultResurrectCutoff
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// BasePool implements everything but node selection. Liveness tracking is a
// no-op and GetConnection fails with common.ErrNotImplemented; concrete
// strategies embed it and override those.
type BasePool struct {
	cfg Config

	mu    sync.Mutex
	conns []*connection.Connection
}

// NewBasePool creates an empty pool
func NewBasePool(cfg Config) *BasePool {
	cfg.applyDefaults()
	return &BasePool{cfg: cfg}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see pool.IConnectionPool)
// --------------------------------------------------------------------------

func (p *BasePool) AddConnection(nodes ...NodeDescriptor) ([]*connection.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(nodes)
}

func (p *BasePool) CreateConnection(node NodeDescriptor) (*connection.Connection, error) {
	conn, err := p.newConnection(node)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexLocked(conn.ID()) >= 0 {
		_ = conn.Close()
		return nil, &common.DuplicateConnectionError{ID: conn.ID()}
	}
	return conn, nil
}

func (p *BasePool) RemoveConnection(conn *connection.Connection) error {
	p.mu.Lock()
	idx := p.indexLocked(conn.ID())
	if idx < 0 {
		p.mu.Unlock()
		return nil
	}
	removed := p.conns[idx]
	p.conns = append(p.conns[:idx:idx], p.conns[idx+1:]...)
	p.mu.Unlock()

	Logger.Debugf("removed connection %s", removed.ID())
	return removed.Close()
}

func (p *BasePool) MarkDead(*connection.Connection) {}

func (p *BasePool) MarkAlive(*connection.Connection) {}

func (p *BasePool) GetConnection(context.Context, GetConnectionOptions) (*connection.Connection, error) {
	return nil, common.ErrNotImplemented
}

func (p *BasePool) Update(nodes []NodeDescriptor) error {
	p.mu.Lock()
	next, stale, err := p.reconcileLocked(nodes)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.conns = next
	p.mu.Unlock()

	for _, conn := range stale {
		if err := conn.Close(); err != nil {
			Logger.Warningf("failed to close stale connection %s: %v", conn.ID(), err)
		}
	}
	return nil
}

func (p *BasePool) Empty() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	var g errgroup.Group
	for _, conn := range conns {
		g.Go(conn.Close)
	}
	return g.Wait()
}

func (p *BasePool) Connections() []*connection.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*connection.Connection(nil), p.conns...)
}

func (p *BasePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// --------------------------------------------------------------------------
// Helper (callers hold p.mu where the name says so)
// --------------------------------------------------------------------------

func (p *BasePool) newConnection(node NodeDescriptor) (*connection.Connection, error) {
	return connection.New(connection.Options{
		URL:       node.URL,
		ID:        node.ID,
		Roles:     node.Roles,
		Headers:   p.cfg.Headers,
		Auth:      p.cfg.Auth,
		TLSConfig: p.cfg.TLSConfig,
		Proxy:     p.cfg.Proxy,
	})
}

func (p *BasePool) indexLocked(id string) int {
	for i, conn := range p.conns {
		if conn.ID() == id {
			return i
		}
	}
	return -1
}

// addLocked inserts all nodes or none of them
func (p *BasePool) addLocked(nodes []NodeDescriptor) ([]*connection.Connection, error) {
	created := make([]*connection.Connection, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	abort := func(err error) ([]*connection.Connection, error) {
		for _, conn := range created {
			_ = conn.Close()
		}
		return nil, err
	}

	for _, node := range nodes {
		conn, err := p.newConnection(node)
		if err != nil {
			return abort(err)
		}
		created = append(created, conn)
		if seen[conn.ID()] || p.indexLocked(conn.ID()) >= 0 {
			return abort(&common.DuplicateConnectionError{ID: conn.ID()})
		}
		seen[conn.ID()] = true
	}

	p.conns = append(p.conns, created...)
	for _, conn := range created {
		Logger.Debugf("added connection %s", conn.ID())
	}
	return created, nil
}

// reconcileLocked computes the connection list after an update. Existing
// connections keep their position, new ones are appended. The returned stale
// connections have to be closed by the caller.
func (p *BasePool) reconcileLocked(nodes []NodeDescriptor) (next, stale []*connection.Connection, err error) {
	byID := make(map[string]*connection.Connection, len(p.conns))
	byURL := make(map[string]*connection.Connection, len(p.conns))
	for _, conn := range p.conns {
		byID[conn.ID()] = conn
		byURL[conn.URL().String()] = conn
	}

	keep := make(map[string]bool, len(nodes))
	replaced := make(map[string]*connection.Connection)
	var added []*connection.Connection
	abort := func(err error) ([]*connection.Connection, []*connection.Connection, error) {
		for _, conn := range replaced {
			_ = conn.Close()
		}
		for _, conn := range added {
			_ = conn.Close()
		}
		return nil, nil, err
	}

	for _, node := range nodes {
		if node.URL == nil {
			return abort(common.NewConfigurationError("node %q has no url", node.ID))
		}
		id := node.ConnectionID()
		key := normalizeURL(node.URL).String()

		if existing, ok := byID[id]; ok {
			if existing.URL().String() == key {
				if node.Roles != nil {
					existing.SetRoles(node.Roles)
				}
				keep[id] = true
				continue
			}
			conn, err := p.newConnection(node)
			if err != nil {
				return abort(err)
			}
			Logger.Infof("connection %s moved from %s to %s", id, existing.URL(), key)
			if previous, ok := replaced[id]; ok {
				_ = previous.Close()
			}
			replaced[id] = conn
			byID[id] = conn
			byURL[key] = conn
			keep[id] = true
			continue
		}

		if existing, ok := byURL[key]; ok {
			// same node announced under another id, the known id wins
			if node.Roles != nil {
				existing.SetRoles(node.Roles)
			}
			keep[existing.ID()] = true
			continue
		}

		conn, err := p.newConnection(node)
		if err != nil {
			return abort(err)
		}
		added = append(added, conn)
		byID[id] = conn
		byURL[key] = conn
		keep[id] = true
	}

	next = make([]*connection.Connection, 0, len(p.conns)+len(added))
	for _, conn := range p.conns {
		switch {
		case replaced[conn.ID()] != nil:
			next = append(next, replaced[conn.ID()])
			stale = append(stale, conn)
		case keep[conn.ID()]:
			next = append(next, conn)
		default:
			Logger.Infof("connection %s is no longer part of the cluster", conn.ID())
			stale = append(stale, conn)
		}
	}
	next = append(next, added...)
	return next, stale, nil
}
