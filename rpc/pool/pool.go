package pool

import (
	"context"
	"sort"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
)

// ConnectionPool hands out alive connections in round-robin order and brings
// dead connections back according to its resurrect strategy
type ConnectionPool struct {
	*BasePool

	// cursor is shared by all requests, guarded by BasePool.mu
	cursor int
}

// NewConnectionPool creates an empty round-robin pool
func NewConnectionPool(cfg Config) *ConnectionPool {
	return &ConnectionPool{BasePool: NewBasePool(cfg)}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see pool.IConnectionPool)
// --------------------------------------------------------------------------

// MarkDead is only tracked when sniffing is enabled or the pool can resurrect
// one of several connections. Otherwise the next attempt simply picks the
// next connection.
func (p *ConnectionPool) MarkDead(conn *connection.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.tracksLivenessLocked() {
		return
	}
	deadline := conn.MarkDead(p.cfg.Clock(), p.cfg.ResurrectTimeout, p.cfg.ResurrectCutoff)
	Logger.Warningf("marked connection %s as dead (deadCount=%d, resurrect at %s)",
		conn.ID(), conn.DeadCount(), deadline.Format("15:04:05"))
}

func (p *ConnectionPool) MarkAlive(conn *connection.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.tracksLivenessLocked() {
		return
	}
	if !conn.IsAlive() || conn.DeadCount() > 0 {
		Logger.Infof("connection %s is alive again", conn.ID())
	}
	conn.MarkAlive()
}

func (p *ConnectionPool) GetConnection(ctx context.Context, opts GetConnectionOptions) (*connection.Connection, error) {
	filter := opts.Filter
	if filter == nil {
		filter = func(*connection.Connection) bool { return true }
	}

	p.mu.Lock()
	var alive, dead []*connection.Connection
	for _, conn := range p.conns {
		if !filter(conn) {
			continue
		}
		if conn.IsAlive() {
			alive = append(alive, conn)
		} else {
			dead = append(dead, conn)
		}
	}

	if len(alive) > 0 {
		var conn *connection.Connection
		if opts.Selector != nil {
			conn = opts.Selector(alive)
		} else {
			conn = p.nextLocked(alive)
		}
		p.mu.Unlock()
		if conn == nil {
			return nil, &common.NoLivingConnectionsError{Meta: opts.Meta}
		}
		return conn, nil
	}
	p.mu.Unlock()

	return p.resurrect(ctx, dead, opts.Meta)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (p *ConnectionPool) tracksLivenessLocked() bool {
	return p.cfg.SniffEnabled || (p.cfg.ResurrectStrategy != common.ResurrectNone && len(p.conns) > 1)
}

// nextLocked advances the shared cursor over the given connections
func (p *ConnectionPool) nextLocked(conns []*connection.Connection) *connection.Connection {
	if p.cursor >= len(conns) {
		p.cursor = 0
	}
	conn := conns[p.cursor]
	p.cursor++
	return conn
}

// resurrect tries the dead connections whose backoff elapsed, earliest
// deadline first. The ping probe runs without holding the pool lock.
func (p *ConnectionPool) resurrect(ctx context.Context, dead []*connection.Connection, meta *common.RequestMeta) (*connection.Connection, error) {
	strategy := p.cfg.ResurrectStrategy
	if strategy == common.ResurrectNone || len(dead) == 0 {
		return nil, &common.NoLivingConnectionsError{Meta: meta}
	}

	sort.SliceStable(dead, func(i, j int) bool {
		return dead[i].ResurrectAt().Before(dead[j].ResurrectAt())
	})

	now := p.cfg.Clock()
	for _, conn := range dead {
		if conn.ResurrectAt().After(now) {
			break
		}

		switch strategy {
		case common.ResurrectOptimistic:
			p.mu.Lock()
			conn.Resurrect()
			p.mu.Unlock()
			p.emitResurrect(conn, strategy, true, meta)
			Logger.Infof("optimistically resurrected connection %s", conn.ID())
			return conn, nil

		case common.ResurrectPing:
			isAlive := conn.Ping(ctx, p.cfg.PingTimeout)
			p.emitResurrect(conn, strategy, isAlive, meta)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			p.mu.Lock()
			if isAlive {
				conn.MarkAlive()
			} else {
				conn.MarkDead(p.cfg.Clock(), p.cfg.ResurrectTimeout, p.cfg.ResurrectCutoff)
			}
			p.mu.Unlock()

			if isAlive {
				Logger.Infof("resurrected connection %s after successful ping", conn.ID())
				return conn, nil
			}
			Logger.Debugf("ping of dead connection %s failed", conn.ID())
		}
	}
	return nil, &common.NoLivingConnectionsError{Meta: meta}
}

func (p *ConnectionPool) emitResurrect(conn *connection.Connection, strategy string, isAlive bool, meta *common.RequestMeta) {
	p.cfg.Events.Emit(common.Event{
		Type: common.EventResurrect,
		Meta: meta,
		Resurrect: &common.ResurrectInfo{
			Strategy:     strategy,
			ConnectionID: conn.ID(),
			IsAlive:      isAlive,
		},
	})
}
