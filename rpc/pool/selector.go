package pool

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
)

// RoundRobinSelector returns a selector with its own cursor. Pools use
// their shared cursor when no selector is given.
func RoundRobinSelector() Selector {
	var counter atomic.Uint64
	return func(conns []*connection.Connection) *connection.Connection {
		if len(conns) == 0 {
			return nil
		}
		return conns[(counter.Add(1)-1)%uint64(len(conns))]
	}
}

// RandomSelector picks a uniformly random connection
func RandomSelector() Selector {
	return func(conns []*connection.Connection) *connection.Connection {
		if len(conns) == 0 {
			return nil
		}
		return conns[rand.IntN(len(conns))]
	}
}

// SelectorByName resolves a configured selector name. Round robin resolves
// to nil so that the pool cursor is used.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", common.SelectorRoundRobin:
		return nil, nil
	case common.SelectorRandom:
		return RandomSelector(), nil
	default:
		return nil, common.NewConfigurationError("invalid node selector %q", name)
	}
}
