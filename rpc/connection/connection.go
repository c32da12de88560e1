package connection

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/rcrowley/go-metrics"
)

// Status is the liveness state of a connection
type Status string

const (
	StatusAlive Status = "alive"
	StatusDead  Status = "dead"
)

const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	latencySampleSize          = 1028
)

// Options describes a connection to create
type Options struct {
	// URL of the node, may contain credentials
	URL *url.URL
	// ID of the connection, defaults to the URL without credentials
	ID string
	// Roles of the node, nil if unknown
	Roles Roles
	// Headers are sent with every request of this connection
	Headers http.Header
	// Auth is used when the URL itself carries no credentials
	Auth *common.Auth
	// TLSConfig for https nodes
	TLSConfig *tls.Config
	// Proxy all requests through this URL
	Proxy *url.URL
	// IdleConnTimeout of kept-alive sockets
	IdleConnTimeout time.Duration
}

// Connection is one addressable node of the cluster. All methods are safe
// for concurrent use.
type Connection struct {
	id        string
	url       *url.URL
	headers   http.Header
	client    *http.Client
	transport *http.Transport

	requests metrics.Counter
	failures metrics.Counter
	latency  metrics.Histogram

	mu          sync.RWMutex
	roles       Roles
	status      Status
	deadCount   int
	resurrectAt time.Time
}

// New creates an alive connection. Credentials in the URL are removed from it
// and sent as basic auth header instead.
func New(opts Options) (*Connection, error) {
	if opts.URL == nil {
		return nil, common.NewConfigurationError("connection url is missing")
	}
	if opts.URL.Scheme != "http" && opts.URL.Scheme != "https" {
		return nil, common.NewConfigurationError("unsupported scheme %q in %s", opts.URL.Scheme, opts.URL.Redacted())
	}

	clean := *opts.URL
	clean.User = nil
	if clean.Path == "" {
		clean.Path = "/"
	}

	headers := opts.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if user := opts.URL.User; user != nil {
		password, _ := user.Password()
		headers.Set("Authorization", basicAuth(user.Username(), password))
	} else if value := AuthorizationHeader(opts.Auth); value != "" {
		headers.Set("Authorization", value)
	}

	id := opts.ID
	if id == "" {
		id = clean.String()
	}

	idleTimeout := opts.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     opts.TLSConfig,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     idleTimeout,
		// bodies are decoded by the transport package
		DisableCompression: true,
		ForceAttemptHTTP2:  true,
	}
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	}

	return &Connection{
		id:        id,
		url:       &clean,
		headers:   headers,
		transport: transport,
		client:    &http.Client{Transport: transport},
		requests:  metrics.NewCounter(),
		failures:  metrics.NewCounter(),
		latency:   metrics.NewHistogram(metrics.NewUniformSample(latencySampleSize)),
		roles:     opts.Roles.Clone(),
		status:    StatusAlive,
	}, nil
}

// --------------------------------------------------------------------------
// Identity
// --------------------------------------------------------------------------

func (c *Connection) ID() string { return c.id }

// URL returns a copy of the node url (without credentials)
func (c *Connection) URL() *url.URL {
	u := *c.url
	return &u
}

// Headers returns a copy of the default headers of this connection
func (c *Connection) Headers() http.Header { return c.headers.Clone() }

func (c *Connection) Roles() Roles {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roles.Clone()
}

func (c *Connection) SetRoles(roles Roles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles = roles.Clone()
}

// --------------------------------------------------------------------------
// Liveness
// --------------------------------------------------------------------------

func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Connection) IsAlive() bool {
	return c.Status() == StatusAlive
}

func (c *Connection) DeadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deadCount
}

// ResurrectAt is the earliest time a dead connection may be tried again
func (c *Connection) ResurrectAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resurrectAt
}

// MarkAlive resets the connection to a healthy state
func (c *Connection) MarkAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusAlive
	c.deadCount = 0
	c.resurrectAt = time.Time{}
}

// MarkDead records a failure. The connection may be retried after
// base * 2^min(deadCount-1, cutoff), the returned deadline.
func (c *Connection) MarkDead(now time.Time, base time.Duration, cutoff int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadCount++
	c.status = StatusDead
	exp := min(c.deadCount-1, cutoff)
	c.resurrectAt = now.Add(time.Duration(float64(base) * math.Pow(2, float64(exp))))
	return c.resurrectAt
}

// Resurrect hands a dead connection out again without forgetting its failures
func (c *Connection) Resurrect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusAlive
}

// --------------------------------------------------------------------------
// I/O
// --------------------------------------------------------------------------

// BuildURL joins the request path onto the base path of the node
func (c *Connection) BuildURL(path, rawQuery string) *url.URL {
	u := *c.url
	u.Path = strings.TrimSuffix(c.url.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = rawQuery
	return &u
}

// Do sends the request through the keep-alive agent of this node. Default
// headers are added unless the request already sets them.
func (c *Connection) Do(req *http.Request) (*http.Response, error) {
	for key, values := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header[key] = append([]string(nil), values...)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	c.requests.Inc(1)
	c.latency.Update(time.Since(start).Microseconds())
	if err != nil {
		c.failures.Inc(1)
	}
	return resp, err
}

// Ping sends HEAD / to the node. The node counts as alive unless the request
// fails or the node answers with a gateway error.
func (c *Connection) Ping(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BuildURL("/", "").String(), nil)
	if err != nil {
		return false
	}
	resp, err := c.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return false
	}
	return true
}

// Close releases all kept-alive sockets of this connection
func (c *Connection) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Misc
// --------------------------------------------------------------------------

// Stats is a snapshot of the request statistics of a connection
type Stats struct {
	Requests    int64
	Failures    int64
	MeanLatency time.Duration
	P99Latency  time.Duration
}

func (c *Connection) Stats() Stats {
	snapshot := c.latency.Snapshot()
	return Stats{
		Requests:    c.requests.Count(),
		Failures:    c.failures.Count(),
		MeanLatency: time.Duration(snapshot.Mean()) * time.Microsecond,
		P99Latency:  time.Duration(snapshot.Percentile(0.99)) * time.Microsecond,
	}
}

func (c *Connection) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s (%s, deadCount=%d)", c.id, c.status, c.deadCount)
}

// AuthorizationHeader renders the Authorization header value of the given
// credentials. It returns an empty string for nil or empty credentials.
func AuthorizationHeader(auth *common.Auth) string {
	switch {
	case auth == nil:
		return ""
	case auth.APIKey != "":
		return "ApiKey " + auth.APIKey
	case auth.Username != "":
		return basicAuth(auth.Username, auth.Password)
	}
	return ""
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
