package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/pool"
	"github.com/VictoriaMetrics/metrics"
)

// Request outcomes as exported in the dtransport_requests_total counter
const (
	outcomeSuccess       = "success"
	outcomeResponseError = "response_error"
	outcomeConnection    = "connection_error"
	outcomeTimeout       = "timeout"
	outcomeNoConnection  = "no_living_connections"
	outcomeAborted       = "aborted"
	outcomeSerialization = "serialization_error"
	outcomeDecode        = "deserialization_error"
	outcomeInvalid       = "invalid_request"
)

// transportMetrics exports the request statistics of one transport in the
// Prometheus text format
type transportMetrics struct {
	set    *metrics.Set
	client string
}

func newTransportMetrics(client string, p pool.IConnectionPool) *transportMetrics {
	m := &transportMetrics{set: metrics.NewSet(), client: client}

	m.set.GetOrCreateGauge(m.name("dtransport_pool_connections", ""), func() float64 {
		return float64(p.Size())
	})
	m.set.GetOrCreateGauge(m.name("dtransport_pool_dead_connections", ""), func() float64 {
		dead := 0
		for _, conn := range p.Connections() {
			if !conn.IsAlive() {
				dead++
			}
		}
		return float64(dead)
	})
	return m
}

func (m *transportMetrics) name(metric, labels string) string {
	if labels == "" {
		return fmt.Sprintf(`%s{client=%q}`, metric, m.client)
	}
	return fmt.Sprintf(`%s{client=%q,%s}`, metric, m.client, labels)
}

// request records the final outcome of one logical request
func (m *transportMetrics) request(outcome string, start time.Time) {
	m.set.GetOrCreateCounter(m.name("dtransport_requests_total", fmt.Sprintf("outcome=%q", outcome))).Inc()
	m.set.GetOrCreateHistogram(m.name("dtransport_request_duration_seconds", "")).UpdateDuration(start)
}

// attempt records one network attempt against a node
func (m *transportMetrics) attempt(connectionID string, failed bool) {
	m.set.GetOrCreateCounter(m.name("dtransport_attempts_total", fmt.Sprintf("node=%q", connectionID))).Inc()
	if failed {
		m.set.GetOrCreateCounter(m.name("dtransport_attempt_failures_total", fmt.Sprintf("node=%q", connectionID))).Inc()
	}
}

func (m *transportMetrics) sniff(reason string, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	m.set.GetOrCreateCounter(m.name("dtransport_sniffs_total", fmt.Sprintf("reason=%q,status=%q", reason, status))).Inc()
}

func (m *transportMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}
