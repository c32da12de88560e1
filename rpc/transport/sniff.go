package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/pool"
	"golang.org/x/sync/singleflight"
)

// Reasons reported in sniff events
const (
	ReasonSniffOnStart           = "sniff-on-start"
	ReasonSniffInterval          = "sniff-interval"
	ReasonSniffOnConnectionFault = "sniff-on-connection-fault"
	ReasonDefault                = "manual"
)

// ErrClosed is returned by Sniff once the transport has been closed
var ErrClosed = errors.New("transport: closed")

// Sniff fetches the node list of the cluster and reconciles the pool with
// it. Concurrent calls share one sniff, which runs under the lifetime of the
// transport. ctx only bounds how long the caller waits for it.
func (t *Transport) Sniff(ctx context.Context, reason string) ([]pool.NodeDescriptor, error) {
	if reason == "" {
		reason = ReasonDefault
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.wg.Add(1)
	t.mu.Unlock()

	done := make(chan singleflight.Result, 1)
	go func() {
		defer t.wg.Done()
		hosts, err, shared := t.sniffGroup.Do("sniff", func() (any, error) {
			return t.sniff(t.ctx, reason)
		})
		done <- singleflight.Result{Val: hosts, Err: err, Shared: shared}
	}()

	select {
	case <-ctx.Done():
		return nil, &common.RequestAbortedError{Err: ctx.Err()}
	case res := <-done:
		if res.Shared {
			Logger.Debugf("sniff (%s) shared a sniff with another caller", reason)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]pool.NodeDescriptor), nil
	}
}

func (t *Transport) sniff(ctx context.Context, reason string) ([]pool.NodeDescriptor, error) {
	conns := t.cfg.Pool.Connections()
	if len(conns) == 0 {
		err := &common.NoLivingConnectionsError{}
		t.sniffDone(reason, nil, err)
		return nil, err
	}
	scheme := conns[0].URL().Scheme

	var nodes pool.NodesResponse
	meta := &common.RequestMeta{
		RequestID: t.requestID(Params{}, &Options{}),
		Name:      t.cfg.Name,
		Method:    http.MethodGet,
		Path:      "/" + t.cfg.SniffEndpoint,
		Sniffing:  true,
	}
	_, err := t.request(ctx, Params{Method: http.MethodGet, Path: meta.Path}, &Options{
		RequestTimeout: t.cfg.PingTimeout,
		Into:           &nodes,
	}, meta)
	if err != nil {
		t.sniffDone(reason, nil, err)
		return nil, err
	}

	hosts := pool.NodesToHost(nodes.Nodes, scheme)
	if err := t.cfg.Pool.Update(hosts); err != nil {
		t.sniffDone(reason, nil, err)
		return nil, err
	}
	t.sniffDone(reason, hosts, nil)
	return hosts, nil
}

// sniffDone logs, counts and emits the result of a sniff
func (t *Transport) sniffDone(reason string, hosts []pool.NodeDescriptor, err error) {
	t.metrics.sniff(reason, err != nil)

	info := &common.SniffInfo{Reason: reason}
	for _, host := range hosts {
		info.Hosts = append(info.Hosts, host.URL.String())
	}
	if err != nil {
		Logger.Warningf("sniff (%s) failed: %v", reason, err)
	} else {
		Logger.Infof("sniff (%s) found %d node(s), pool size is %d", reason, len(hosts), t.cfg.Pool.Size())
	}
	t.cfg.Events.Emit(common.Event{Type: common.EventSniff, Err: err, Sniff: info})
}

// sniffAsync runs a sniff in the background. Errors are only logged and emitted.
func (t *Transport) sniffAsync(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, _ = t.Sniff(t.ctx, reason)
	}()
}

// sniffLoop sniffs every SniffInterval until the transport is closed
func (t *Transport) sniffLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.SniffInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			_, _ = t.Sniff(t.ctx, ReasonSniffInterval)
		}
	}
}
