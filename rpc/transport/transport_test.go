package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/clustertest"
	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
	"github.com/ValentinKolb/dTransport/rpc/pool"
	"github.com/ValentinKolb/dTransport/rpc/serializer"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newPool(t *testing.T, cfg pool.Config, urls ...string) *pool.ConnectionPool {
	t.Helper()
	p := pool.NewConnectionPool(cfg)
	for _, u := range urls {
		host, err := pool.URLToHost(u)
		require.NoError(t, err)
		_, err = p.AddConnection(host)
		require.NoError(t, err)
	}
	return p
}

func newTransport(t *testing.T, p pool.IConnectionPool, cfg Config) *Transport {
	t.Helper()
	cfg.Pool = p
	if cfg.Serializer == nil {
		cfg.Serializer = serializer.NewJSONSerializer(serializer.Options{})
	}
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	tr, err := New(cfg)
	require.NoError(t, err)
	return tr
}

// newTestTransport creates a transport over the given urls that is closed
// (together with its pool) when the test ends
func newTestTransport(t *testing.T, cfg Config, urls ...string) (*Transport, *pool.ConnectionPool) {
	t.Helper()
	p := newPool(t, pool.Config{Events: cfg.Events}, urls...)
	tr := newTransport(t, p, cfg)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = p.Empty()
	})
	return tr, p
}

func echoOf(t *testing.T, res *Result) map[string]any {
	t.Helper()
	body, ok := res.Body.(map[string]any)
	require.True(t, ok, "expected a JSON object body, got %T", res.Body)
	return body
}

// blockingHandler blocks every request until the client gives up
func blockingHandler(entered chan<- struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-r.Context().Done()
	}
}

// --------------------------------------------------------------------------
// Basic requests
// --------------------------------------------------------------------------

func TestRequestSuccess(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, _ := newTestTransport(t, Config{MaxRetries: 3}, cluster.URLs()...)

	res, err := tr.Request(context.Background(), Params{
		Method:      http.MethodPost,
		Path:        "/index/_search",
		Querystring: map[string]any{"pretty": true, "filter_path": []string{"a", "b"}, "skip": nil},
		Body:        map[string]any{"query": map[string]any{"match_all": map[string]any{}}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, res.Meta.Attempts)
	assert.Equal(t, "1", res.Meta.RequestID)
	assert.Equal(t, "test", res.Meta.Name)

	echo := echoOf(t, res)
	assert.Equal(t, "a", echo["node"])
	assert.Equal(t, http.MethodPost, echo["method"])
	assert.Equal(t, "/index/_search", echo["path"])
	assert.JSONEq(t, `{"query":{"match_all":{}}}`, echo["body"].(string))
	assert.Equal(t, map[string]any{"pretty": []any{"true"}, "filter_path": []any{"a,b"}}, echo["query"])

	headers := echo["headers"].(map[string]any)
	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.True(t, strings.HasPrefix(headers["User-Agent"].(string), "dtransport/"+common.Version))
	assert.NotContains(t, headers, "Accept-Encoding")
}

func TestRequestIDsAndHeaders(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()

	t.Run("Counter", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{}, cluster.URLs()...)
		for i, expected := range []string{"1", "2", "custom", "3"} {
			opts := &Options{}
			if expected == "custom" {
				opts.ID = "custom"
			}
			res, err := tr.Request(context.Background(), Params{Path: "/"}, opts)
			require.NoError(t, err, "request %d", i)
			assert.Equal(t, expected, res.Meta.RequestID)
		}
	})

	t.Run("Generator", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{
			GenerateRequestID: func(params Params, _ *Options) string { return "gen-" + params.Path },
		}, cluster.URLs()...)
		res, err := tr.Request(context.Background(), Params{Path: "/x"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "gen-/x", res.Meta.RequestID)
	})

	t.Run("HeadersAndOpaqueID", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{
			OpaqueIDPrefix: "app::",
			Headers:        map[string]string{"Authorization": "Bearer config"},
		}, cluster.URLs()...)

		res, err := tr.Request(context.Background(), Params{Path: "/"}, &Options{
			OpaqueID:    "job-1",
			Querystring: map[string]any{"routing": "r1"},
		})
		require.NoError(t, err)

		echo := echoOf(t, res)
		headers := echo["headers"].(map[string]any)
		assert.Equal(t, "app::job-1", headers["X-Opaque-Id"])
		assert.Equal(t, "Bearer config", headers["Authorization"])
		assert.Equal(t, map[string]any{"routing": []any{"r1"}}, echo["query"])

		res, err = tr.Request(context.Background(), Params{Path: "/"}, &Options{
			Headers: map[string]string{"Authorization": "Bearer request"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bearer request", echoOf(t, res)["headers"].(map[string]any)["Authorization"])
	})
}

func TestRequestBodies(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, _ := newTestTransport(t, Config{}, cluster.URLs()...)
	ctx := context.Background()

	t.Run("Bulk", func(t *testing.T) {
		res, err := tr.Request(ctx, Params{Method: http.MethodPost, Path: "/_bulk", BulkBody: []any{
			map[string]any{"index": map[string]any{"_index": "test"}},
			map[string]any{"field": 1},
		}}, nil)
		require.NoError(t, err)

		echo := echoOf(t, res)
		assert.Equal(t, "{\"index\":{\"_index\":\"test\"}}\n{\"field\":1}\n", echo["body"])
		assert.Equal(t, "application/x-ndjson", echo["headers"].(map[string]any)["Content-Type"])
	})

	t.Run("RawString", func(t *testing.T) {
		res, err := tr.Request(ctx, Params{Method: http.MethodPost, Path: "/", Body: `{"raw":true}`}, nil)
		require.NoError(t, err)
		assert.Equal(t, `{"raw":true}`, echoOf(t, res)["body"])
	})

	t.Run("Into", func(t *testing.T) {
		var echo clustertest.Echo
		res, err := tr.Request(ctx, Params{Path: "/typed"}, &Options{Into: &echo})
		require.NoError(t, err)
		assert.Equal(t, "/typed", echo.Path)
		assert.Same(t, &echo, res.Body)
	})

	t.Run("PlainText", func(t *testing.T) {
		cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("green open index"))
		})
		defer cluster.Node("a").Handle(nil)

		res, err := tr.Request(ctx, Params{Path: "/_cat/indices"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "green open index", res.Body)
	})
}

func TestSerializationErrorSkipsNetwork(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, _ := newTestTransport(t, Config{}, cluster.URLs()...)

	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	_, err := tr.Request(context.Background(), Params{Method: http.MethodPost, Path: "/", Body: cyclic}, nil)
	var serErr *common.SerializationError
	require.True(t, errors.As(err, &serErr), "expected SerializationError, got %v", err)
	assert.Equal(t, int64(0), cluster.Node("a").Requests())
}

func TestInvalidMethodSkipsNetwork(t *testing.T) {
	cluster := clustertest.New("a", "b")
	defer cluster.Close()
	tr, p := newTestTransport(t, Config{MaxRetries: 3}, cluster.URLs()...)

	_, err := tr.Request(context.Background(), Params{Method: "GET /", Path: "/"}, nil)
	var cfgErr *common.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)

	for _, node := range cluster.Nodes() {
		assert.Equal(t, int64(0), node.Requests())
	}
	for _, conn := range p.Connections() {
		assert.True(t, conn.IsAlive())
	}
}

func TestDeserializationError(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, p := newTestTransport(t, Config{}, cluster.URLs()...)

	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"__proto__":{"isAdmin":true}}`))
	})

	_, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	var desErr *common.DeserializationError
	require.True(t, errors.As(err, &desErr), "expected DeserializationError, got %v", err)
	assert.True(t, p.Connections()[0].IsAlive())
}

// --------------------------------------------------------------------------
// Response status handling
// --------------------------------------------------------------------------

func TestResponseErrorIsNotRetried(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, p := newTestTransport(t, Config{MaxRetries: 3}, cluster.URLs()...)

	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		clustertest.WriteJSON(w, http.StatusNotFound, clustertest.ErrorBody(404, "index_not_found_exception", "no such index [missing]"))
	})

	res, err := tr.Request(context.Background(), Params{Path: "/missing/_search"}, nil)
	var respErr *common.ResponseError
	require.True(t, errors.As(err, &respErr), "expected ResponseError, got %v", err)

	assert.Equal(t, http.StatusNotFound, respErr.StatusCode)
	assert.Contains(t, respErr.Error(), "index_not_found_exception: no such index [missing]")
	assert.Equal(t, 1, respErr.Meta.Attempts)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, int64(1), cluster.Node("a").Requests())

	conn := p.Connections()[0]
	assert.Equal(t, connection.StatusAlive, conn.Status())
	assert.Equal(t, 0, conn.DeadCount())
}

func TestIgnoreAndHead(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, _ := newTestTransport(t, Config{}, cluster.URLs()...)
	ctx := context.Background()

	res, err := tr.Request(ctx, Params{Method: http.MethodHead, Path: "/index"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res.Body)

	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		clustertest.WriteJSON(w, http.StatusNotFound, clustertest.ErrorBody(404, "index_not_found_exception", "missing"))
	})

	res, err = tr.Request(ctx, Params{Method: http.MethodHead, Path: "/index"}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, res.Body)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = tr.Request(ctx, Params{Path: "/index"}, &Options{Ignore: []int{404}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.NotNil(t, res.Body)

	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = tr.Request(ctx, Params{Method: http.MethodHead, Path: "/index"}, nil)
	var respErr *common.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, false, respErr.Body)
}

func TestWarnings(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, _ := newTestTransport(t, Config{}, cluster.URLs()...)

	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Warning", `299 OpenSearch "deprecated endpoint"`)
		w.Header().Add("Warning", `299 OpenSearch "another one"`)
		clustertest.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	res, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`299 OpenSearch "deprecated endpoint"`, `299 OpenSearch "another one"`}, res.Warnings)
}

func TestRetryOnStatus(t *testing.T) {
	cluster := clustertest.New("a", "b")
	defer cluster.Close()
	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		clustertest.WriteJSON(w, http.StatusServiceUnavailable, clustertest.ErrorBody(503, "unavailable", "node is shutting down"))
	})

	t.Run("Retried", func(t *testing.T) {
		tr, p := newTestTransport(t, Config{MaxRetries: 2, RetryOnStatus: []int{502, 503, 504}}, cluster.URLs()...)

		res, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "b", echoOf(t, res)["node"])
		assert.Equal(t, 2, res.Meta.Attempts)
		assert.Equal(t, connection.StatusDead, p.Connections()[0].Status())
	})

	t.Run("NotRetriedByDefault", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{MaxRetries: 2}, cluster.URLs()...)

		_, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
		var respErr *common.ResponseError
		require.True(t, errors.As(err, &respErr))
		assert.Equal(t, http.StatusServiceUnavailable, respErr.StatusCode)
	})
}

// --------------------------------------------------------------------------
// Failover
// --------------------------------------------------------------------------

func TestFailover(t *testing.T) {
	cluster := clustertest.New("a", "b", "c")
	defer cluster.Close()
	cluster.Node("a").Stop()
	cluster.Node("c").Stop()

	tr, p := newTestTransport(t, Config{MaxRetries: 2}, cluster.URLs()...)

	res, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", echoOf(t, res)["node"])
	assert.Equal(t, 3, res.Meta.Attempts)

	conns := p.Connections()
	require.Len(t, conns, 3)
	assert.Equal(t, connection.StatusDead, conns[0].Status())
	assert.Equal(t, connection.StatusAlive, conns[1].Status())
	assert.Equal(t, connection.StatusDead, conns[2].Status())
	assert.Equal(t, 3, p.Size())
}

func TestAllNodesDown(t *testing.T) {
	cluster := clustertest.New("a", "b", "c")
	cluster.Close()

	tr, _ := newTestTransport(t, Config{MaxRetries: 2}, cluster.URLs()...)

	_, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	var connErr *common.ConnectionError
	require.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
	assert.Len(t, connErr.Previous, 2)
	assert.Equal(t, 3, connErr.Meta.Attempts)

	// every node is dead now and none is due for resurrection
	_, err = tr.Request(context.Background(), Params{Path: "/"}, nil)
	var noLiving *common.NoLivingConnectionsError
	require.True(t, errors.As(err, &noLiving), "expected NoLivingConnectionsError, got %v", err)
	assert.Equal(t, 1, noLiving.Meta.Attempts)
}

func TestNoLivingConnections(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	tr, _ := newTestTransport(t, Config{
		MaxRetries: 3,
		NodeFilter: func(*connection.Connection) bool { return false },
	}, cluster.URLs()...)

	_, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	var noLiving *common.NoLivingConnectionsError
	require.True(t, errors.As(err, &noLiving))
	assert.Equal(t, int64(0), cluster.Node("a").Requests())
}

func TestTimeout(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	cluster.Node("a").Handle(blockingHandler(nil))

	tr, _ := newTestTransport(t, Config{MaxRetries: 1, RequestTimeout: 50 * time.Millisecond}, cluster.URLs()...)

	start := time.Now()
	_, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	var timeoutErr *common.TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "expected TimeoutError, got %v", err)
	assert.Len(t, timeoutErr.Previous, 1)
	assert.Less(t, time.Since(start), 5*time.Second)

	// per request override
	_, err = tr.Request(context.Background(), Params{Path: "/"}, &Options{MaxRetries: IntPtr(0), RequestTimeout: 20 * time.Millisecond})
	require.True(t, errors.As(err, &timeoutErr))
	assert.Empty(t, timeoutErr.Previous)
}

func TestAbort(t *testing.T) {
	cluster := clustertest.New("a", "b")
	defer cluster.Close()
	entered := make(chan struct{}, 1)
	cluster.Node("a").Handle(blockingHandler(entered))

	tr, p := newTestTransport(t, Config{MaxRetries: 3}, cluster.URLs()...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	_, err := tr.Request(ctx, Params{Path: "/"}, nil)
	var abortErr *common.RequestAbortedError
	require.True(t, errors.As(err, &abortErr), "expected RequestAbortedError, got %v", err)
	assert.Equal(t, 1, abortErr.Meta.Attempts)

	for _, conn := range p.Connections() {
		assert.True(t, conn.IsAlive(), conn.ID())
	}
	assert.Equal(t, int64(0), cluster.Node("b").Requests())

	// an already cancelled context never reaches the network
	_, err = tr.Request(ctx, Params{Path: "/"}, nil)
	require.True(t, errors.As(err, &abortErr))
}

func TestMaxResponseSize(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
		clustertest.WriteJSON(w, http.StatusOK, map[string]any{"data": strings.Repeat("x", 1024)})
	})

	tr, _ := newTestTransport(t, Config{MaxResponseSize: 100}, cluster.URLs()...)

	_, err := tr.Request(context.Background(), Params{Path: "/"}, nil)
	var abortErr *common.RequestAbortedError
	require.True(t, errors.As(err, &abortErr))
	assert.True(t, errors.Is(err, ErrResponseTooLarge))

	_, err = tr.Request(context.Background(), Params{Path: "/"}, &Options{MaxResponseSize: 4096})
	require.NoError(t, err)
}

// --------------------------------------------------------------------------
// Compression
// --------------------------------------------------------------------------

func TestCompression(t *testing.T) {
	cluster := clustertest.New("a")
	defer cluster.Close()
	ctx := context.Background()

	t.Run("GzipRequest", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{Compression: common.CompressionGzip}, cluster.URLs()...)

		res, err := tr.Request(ctx, Params{Method: http.MethodPost, Path: "/", Body: map[string]any{"hello": "world"}}, nil)
		require.NoError(t, err)

		echo := echoOf(t, res)
		assert.Equal(t, "gzip", echo["content_encoding"])
		assert.JSONEq(t, `{"hello":"world"}`, echo["body"].(string))
		assert.Equal(t, "gzip,deflate", echo["headers"].(map[string]any)["Accept-Encoding"])

		res, err = tr.Request(ctx, Params{Method: http.MethodPost, Path: "/", Body: `{}`}, &Options{Compression: StringPtr("")})
		require.NoError(t, err)
		assert.NotContains(t, echoOf(t, res), "content_encoding")
	})

	t.Run("SuggestCompression", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{SuggestCompression: true}, cluster.URLs()...)
		res, err := tr.Request(ctx, Params{Path: "/"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "gzip,deflate", echoOf(t, res)["headers"].(map[string]any)["Accept-Encoding"])
	})

	t.Run("CompressedResponses", func(t *testing.T) {
		tr, _ := newTestTransport(t, Config{SuggestCompression: true}, cluster.URLs()...)
		encoders := map[string]func(io.Writer) io.WriteCloser{
			"gzip":    func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
			"deflate": func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) },
		}

		for encoding, newWriter := range encoders {
			t.Run(encoding, func(t *testing.T) {
				var buf bytes.Buffer
				zw := newWriter(&buf)
				_, err := zw.Write([]byte(`{"compressed":true}`))
				require.NoError(t, err)
				require.NoError(t, zw.Close())
				payload := buf.Bytes()

				cluster.Node("a").Handle(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Content-Encoding", encoding)
					_, _ = w.Write(payload)
				})
				defer cluster.Node("a").Handle(nil)

				res, err := tr.Request(ctx, Params{Path: "/"}, nil)
				require.NoError(t, err)
				assert.Equal(t, map[string]any{"compressed": true}, res.Body)
			})
		}
	})

	t.Run("CorruptResponse", func(t *testing.T) {
		for _, encoding := range []string{"gzip", "deflate"} {
			t.Run(encoding, func(t *testing.T) {
				corrupt := clustertest.New("a", "b")
				defer corrupt.Close()
				for _, node := range corrupt.Nodes() {
					node.Handle(func(w http.ResponseWriter, r *http.Request) {
						w.Header().Set("Content-Type", "application/json")
						w.Header().Set("Content-Encoding", encoding)
						_, _ = w.Write([]byte("definitely not compressed"))
					})
				}
				tr, p := newTestTransport(t, Config{MaxRetries: 1}, corrupt.URLs()...)

				_, err := tr.Request(ctx, Params{Path: "/"}, nil)
				var desErr *common.DeserializationError
				require.True(t, errors.As(err, &desErr), "expected DeserializationError, got %v", err)
				var connErr *common.ConnectionError
				assert.False(t, errors.As(err, &connErr))

				// answered by one node, not retried
				var requests int64
				for _, node := range corrupt.Nodes() {
					requests += node.Requests()
				}
				assert.Equal(t, int64(1), requests)
				for _, conn := range p.Connections() {
					assert.Equal(t, connection.StatusAlive, conn.Status())
					assert.Equal(t, 0, conn.DeadCount())
				}
			})
		}
	})
}

// --------------------------------------------------------------------------
// Events and metrics
// --------------------------------------------------------------------------

func TestEventsAndMetrics(t *testing.T) {
	cluster := clustertest.New("a", "b")
	defer cluster.Close()
	cluster.Node("a").Stop()

	events := common.NewEventBus()
	var requests, responses atomic.Int32
	var lastErr atomic.Value
	events.On(common.EventRequest, func(ev common.Event) { requests.Add(1) })
	events.On(common.EventResponse, func(ev common.Event) {
		responses.Add(1)
		if ev.Err != nil {
			lastErr.Store(ev.Err)
		}
	})

	tr, _ := newTestTransport(t, Config{MaxRetries: 1, Events: events}, cluster.URLs()...)

	_, err := tr.Request(context.Background(), Params{Path: "/"}, &Options{Context: "ctx"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, int32(1), responses.Load())
	assert.Nil(t, lastErr.Load())

	cluster.Node("b").Handle(func(w http.ResponseWriter, r *http.Request) {
		clustertest.WriteJSON(w, http.StatusBadRequest, clustertest.ErrorBody(400, "parsing_exception", "bad query"))
	})
	_, err = tr.Request(context.Background(), Params{Path: "/"}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), responses.Load())
	assert.NotNil(t, lastErr.Load())

	var out bytes.Buffer
	tr.WriteMetrics(&out)
	text := out.String()
	assert.Contains(t, text, `dtransport_requests_total{client="test",outcome="success"} 1`)
	assert.Contains(t, text, `dtransport_requests_total{client="test",outcome="response_error"} 1`)
	assert.Contains(t, text, `dtransport_pool_connections{client="test"} 2`)
	assert.Contains(t, text, `dtransport_pool_dead_connections{client="test"} 1`)
	assert.Contains(t, text, "dtransport_request_duration_seconds")
}

func TestNewValidation(t *testing.T) {
	var cfgErr *common.ConfigurationError

	_, err := New(Config{Serializer: serializer.NewJSONSerializer(serializer.Options{})})
	assert.True(t, errors.As(err, &cfgErr))

	_, err = New(Config{Pool: pool.NewConnectionPool(pool.Config{})})
	assert.True(t, errors.As(err, &cfgErr))

	_, err = New(Config{
		Pool:       pool.NewConnectionPool(pool.Config{}),
		Serializer: serializer.NewJSONSerializer(serializer.Options{}),
		MaxRetries: -1,
	})
	assert.True(t, errors.As(err, &cfgErr))
}
