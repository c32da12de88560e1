package clustertest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("dtransport/clustertest")

// Echo is the body every node answers with unless a handler is installed
type Echo struct {
	Node            string              `json:"node"`
	Method          string              `json:"method"`
	Path            string              `json:"path"`
	Query           map[string][]string `json:"query,omitempty"`
	Body            string              `json:"body,omitempty"`
	ContentEncoding string              `json:"content_encoding,omitempty"`
	Headers         map[string]string   `json:"headers,omitempty"`
}

// echoedHeaders are copied into the echo body
var echoedHeaders = []string{"Authorization", "Content-Type", "X-Opaque-Id", "User-Agent", "Accept-Encoding"}

// Node is one fake node backed by an httptest server
type Node struct {
	ID    string
	Roles []string

	cluster  *Cluster
	server   *httptest.Server
	requests atomic.Int64

	mu      sync.RWMutex
	handler http.HandlerFunc
	stopped bool
}

// URL of the node
func (n *Node) URL() string { return n.server.URL }

// Addr is the publish address of the node (ip:port)
func (n *Node) Addr() string { return n.server.Listener.Addr().String() }

// Requests returns the number of requests the node received
func (n *Node) Requests() int64 { return n.requests.Load() }

// Handle replaces the default behavior of the node. A nil handler restores it.
func (n *Node) Handle(handler http.HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
}

// Stop shuts the node down, further connection attempts are refused. The
// node is no longer reported by the sniff endpoint.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.mu.Unlock()

	n.server.CloseClientConnections()
	n.server.Close()
}

func (n *Node) isStopped() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stopped
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	n.requests.Add(1)

	n.mu.RLock()
	handler := n.handler
	n.mu.RUnlock()
	if handler != nil {
		handler(w, r)
		return
	}

	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Path == "/_nodes/_all/http":
		WriteJSON(w, http.StatusOK, n.cluster.NodesResponse())
	default:
		n.echo(w, r)
	}
}

func (n *Node) echo(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "invalid gzip body", http.StatusBadRequest)
			return
		}
		defer zr.Close()
		reader = zr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	echo := Echo{
		Node:            n.ID,
		Method:          r.Method,
		Path:            r.URL.Path,
		Body:            string(body),
		ContentEncoding: r.Header.Get("Content-Encoding"),
		Headers:         map[string]string{},
	}
	if query := r.URL.Query(); len(query) > 0 {
		echo.Query = query
	}
	for _, key := range echoedHeaders {
		if value := r.Header.Get(key); value != "" {
			echo.Headers[key] = value
		}
	}
	WriteJSON(w, http.StatusOK, echo)
}

// Cluster is a set of fake nodes that know about each other
type Cluster struct {
	mu    sync.RWMutex
	nodes []*Node
}

// New starts a cluster with one node per id
func New(ids ...string) *Cluster {
	c := &Cluster{}
	for _, id := range ids {
		c.AddNode(id, "cluster_manager", "data", "ingest")
	}
	return c
}

// AddNode starts a new node that is reported by the sniff endpoint
func (c *Cluster) AddNode(id string, roles ...string) *Node {
	n := &Node{ID: id, Roles: roles, cluster: c}
	n.server = httptest.NewServer(loggerMiddleware(n.serveHTTP))

	c.mu.Lock()
	c.nodes = append(c.nodes, n)
	c.mu.Unlock()
	return n
}

// Node returns the node with the given id or nil
func (c *Cluster) Node(id string) *Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Nodes returns all nodes in the order they were added
func (c *Cluster) Nodes() []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Node(nil), c.nodes...)
}

// URLs returns the urls of all nodes in the order they were added
func (c *Cluster) URLs() []string {
	nodes := c.Nodes()
	urls := make([]string, len(nodes))
	for i, n := range nodes {
		urls[i] = n.URL()
	}
	return urls
}

// NodesResponse is the body of the sniff endpoint, running nodes only
func (c *Cluster) NodesResponse() map[string]any {
	nodes := map[string]any{}
	for _, n := range c.Nodes() {
		if n.isStopped() {
			continue
		}
		roles := append([]string(nil), n.Roles...)
		sort.Strings(roles)
		nodes[n.ID] = map[string]any{
			"name":  n.ID,
			"roles": roles,
			"http":  map[string]any{"publish_address": n.Addr()},
		}
	}
	return map[string]any{
		"_nodes":       map[string]any{"total": len(nodes), "successful": len(nodes), "failed": 0},
		"cluster_name": "clustertest",
		"nodes":        nodes,
	}
}

// Close stops every node
func (c *Cluster) Close() {
	for _, n := range c.Nodes() {
		n.Stop()
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Errorf("failed to write response: %v", err)
	}
}

// ErrorBody builds an error body in the format of the cluster
func ErrorBody(status int, typ, reason string) map[string]any {
	return map[string]any{
		"error":  map[string]any{"type": typ, "reason": reason},
		"status": status,
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
