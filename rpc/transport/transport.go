package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
	"github.com/ValentinKolb/dTransport/rpc/pool"
	"github.com/ValentinKolb/dTransport/rpc/serializer"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger(common.LoggerTransport)

// Config wires a transport. Pool and Serializer are required.
type Config struct {
	Pool       pool.IConnectionPool
	Serializer serializer.ISerializer
	Events     *common.EventBus

	MaxRetries     int
	RequestTimeout time.Duration
	PingTimeout    time.Duration

	SniffInterval          time.Duration
	SniffOnStart           bool
	SniffOnConnectionFault bool
	SniffEndpoint          string

	Compression        string
	SuggestCompression bool
	RetryOnStatus      []int
	MaxResponseSize    int64

	Headers        map[string]string
	Name           string
	OpaqueIDPrefix string

	NodeFilter   pool.NodeFilter
	NodeSelector pool.Selector
	// GenerateRequestID replaces the default incrementing request id
	GenerateRequestID func(params Params, opts *Options) string
}

// Transport implements ITransport
type Transport struct {
	cfg       Config
	userAgent string
	metrics   *transportMetrics

	requestCounter atomic.Uint64
	sniffGroup     singleflight.Group

	// background sniffing, stopped by Close
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a transport and starts the configured background sniffing
func New(cfg Config) (*Transport, error) {
	if cfg.Pool == nil {
		return nil, common.NewConfigurationError("transport requires a connection pool")
	}
	if cfg.Serializer == nil {
		return nil, common.NewConfigurationError("transport requires a serializer")
	}
	if cfg.MaxRetries < 0 {
		return nil, common.NewConfigurationError("maxRetries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = common.DefaultRequestTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = common.DefaultPingTimeout
	}
	if cfg.SniffEndpoint == "" {
		cfg.SniffEndpoint = common.DefaultSniffEndpoint
	}
	if cfg.Name == "" {
		cfg.Name = common.DefaultName
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		cfg:       cfg,
		userAgent: fmt.Sprintf("dtransport/%s (%s %s; %s)", common.Version, runtime.GOOS, runtime.GOARCH, runtime.Version()),
		metrics:   newTransportMetrics(cfg.Name, cfg.Pool),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.SniffOnStart {
		t.sniffAsync(ReasonSniffOnStart)
	}
	if cfg.SniffInterval > 0 {
		t.wg.Add(1)
		go t.sniffLoop()
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ITransport)
// --------------------------------------------------------------------------

func (t *Transport) Request(ctx context.Context, params Params, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	meta := &common.RequestMeta{
		RequestID: t.requestID(params, opts),
		Name:      t.cfg.Name,
		Context:   opts.Context,
		Method:    params.Method,
		Path:      params.Path,
	}
	return t.request(ctx, params, opts, meta)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	return nil
}

// WriteMetrics writes the transport metrics in the Prometheus text format
func (t *Transport) WriteMetrics(w io.Writer) {
	t.metrics.write(w)
}

// --------------------------------------------------------------------------
// Request state machine
// --------------------------------------------------------------------------

// request runs the attempt loop. Connectivity failures are retried on the
// next connection, every other failure ends the request.
func (t *Transport) request(ctx context.Context, params Params, opts *Options, meta *common.RequestMeta) (*Result, error) {
	start := time.Now()
	if params.Method == "" {
		params.Method = http.MethodGet
		meta.Method = http.MethodGet
	}
	// a bad method token fails before any node is touched
	if _, err := http.NewRequest(params.Method, "/", nil); err != nil {
		return nil, t.finish(meta, start, outcomeInvalid, common.NewConfigurationError("invalid request method %q: %v", params.Method, err))
	}

	body, err := t.encodeBody(params)
	if err != nil {
		return nil, t.finish(meta, start, outcomeSerialization, err)
	}
	header, body, err := t.buildHeader(params, opts, body)
	if err != nil {
		return nil, t.finish(meta, start, outcomeSerialization, err)
	}
	rawQuery := t.cfg.Serializer.QSerialize(mergeQuery(params.Querystring, opts.Querystring))

	maxRetries := t.cfg.MaxRetries
	if opts.MaxRetries != nil {
		maxRetries = max(*opts.MaxRetries, 0)
	}
	timeout := t.cfg.RequestTimeout
	if opts.RequestTimeout > 0 {
		timeout = opts.RequestTimeout
	}
	maxSize := t.cfg.MaxResponseSize
	if opts.MaxResponseSize > 0 {
		maxSize = opts.MaxResponseSize
	}

	var previous []error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, t.finish(meta, start, outcomeAborted, &common.RequestAbortedError{Err: err, Meta: meta})
		}
		meta.Attempts = attempt

		conn, err := t.cfg.Pool.GetConnection(ctx, pool.GetConnectionOptions{
			Filter:   t.cfg.NodeFilter,
			Selector: t.cfg.NodeSelector,
			Meta:     meta,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, t.finish(meta, start, outcomeAborted, &common.RequestAbortedError{Err: ctx.Err(), Meta: meta})
			}
			var noLiving *common.NoLivingConnectionsError
			if errors.As(err, &noLiving) {
				noLiving.Meta = meta
				noLiving.Previous = previous
			}
			return nil, t.finish(meta, start, outcomeNoConnection, err)
		}
		meta.ConnectionID = conn.ID()
		t.cfg.Events.Emit(common.Event{Type: common.EventRequest, Meta: meta})

		resp, err := t.send(ctx, conn, params.Method, params.Path, rawQuery, header, body, timeout, maxSize)
		var decodeErr *common.DeserializationError
		if errors.As(err, &decodeErr) {
			// the node answered, only its payload is broken
			t.metrics.attempt(conn.ID(), false)
			t.cfg.Pool.MarkAlive(conn)
			Logger.Warningf("node %s answered %d to %s %s with a malformed payload: %v", conn.ID(), resp.status, params.Method, params.Path, err)
			return nil, t.finish(meta, start, outcomeDecode, decodeErr)
		}
		if err != nil {
			t.metrics.attempt(conn.ID(), true)
			if ctx.Err() != nil {
				return nil, t.finish(meta, start, outcomeAborted, &common.RequestAbortedError{Err: ctx.Err(), Meta: meta})
			}
			if errors.Is(err, ErrResponseTooLarge) {
				return nil, t.finish(meta, start, outcomeAborted, &common.RequestAbortedError{Err: err, Meta: meta})
			}

			var attemptErr error
			if isTimeout(err) {
				attemptErr = &common.TimeoutError{Err: err, Meta: meta}
			} else {
				attemptErr = &common.ConnectionError{Err: err, Meta: meta}
			}
			Logger.Warningf("attempt %d of request %s %s on %s failed: %v", attempt, params.Method, params.Path, conn.ID(), err)

			t.cfg.Pool.MarkDead(conn)
			if t.cfg.SniffOnConnectionFault && !meta.Sniffing {
				t.sniffAsync(ReasonSniffOnConnectionFault)
			}
			previous = append(previous, attemptErr)
			continue
		}
		t.metrics.attempt(conn.ID(), false)

		ignored := slices.Contains(opts.Ignore, resp.status) ||
			(params.Method == http.MethodHead && resp.status == http.StatusNotFound)
		failed := (resp.status < 200 || resp.status >= 300) && !ignored

		if failed && slices.Contains(t.cfg.RetryOnStatus, resp.status) {
			t.cfg.Pool.MarkDead(conn)
			if attempt <= maxRetries {
				Logger.Warningf("node %s answered %d, retrying request %s %s", conn.ID(), resp.status, params.Method, params.Path)
				previous = append(previous, &common.ResponseError{StatusCode: resp.status, Headers: resp.header, Meta: meta})
				continue
			}
		} else {
			t.cfg.Pool.MarkAlive(conn)
		}

		return t.handleResponse(meta, start, params, opts, resp, failed)
	}

	// all attempts failed on connectivity, previous is never empty here
	last := previous[len(previous)-1]
	earlier := previous[:len(previous)-1]
	outcome := outcomeConnection
	switch typed := last.(type) {
	case *common.TimeoutError:
		typed.Previous = earlier
		outcome = outcomeTimeout
	case *common.ConnectionError:
		typed.Previous = earlier
	}
	return nil, t.finish(meta, start, outcome, last)
}

// rawResponse is a fully read response of one attempt
type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// send performs one attempt. The response body is read completely within the
// attempt timeout. A corrupt compressed body still returns status and header
// together with a *common.DeserializationError.
func (t *Transport) send(ctx context.Context, conn *connection.Connection, method, path, rawQuery string, header http.Header, body []byte, timeout time.Duration, maxSize int64) (*rawResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, conn.BuildURL(path, rawQuery).String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header = header.Clone()

	attemptStart := time.Now()
	resp, err := conn.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data []byte
	if method != http.MethodHead {
		data, err = readBody(resp.Body, resp.Header.Get("Content-Encoding"), maxSize)
		var decodeErr *common.DeserializationError
		if errors.As(err, &decodeErr) {
			return &rawResponse{status: resp.StatusCode, header: resp.Header}, err
		}
		if err != nil {
			return nil, err
		}
	}
	Logger.Debugf("%s %s on %s -> %d (%s)", method, path, conn.ID(), resp.StatusCode, time.Since(attemptStart))

	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// handleResponse decodes the body and builds the result of the request
func (t *Transport) handleResponse(meta *common.RequestMeta, start time.Time, params Params, opts *Options, resp *rawResponse, failed bool) (*Result, error) {
	result := &Result{
		StatusCode: resp.status,
		Headers:    resp.header,
		Warnings:   resp.header.Values("Warning"),
		Meta:       meta,
	}
	if len(result.Warnings) > 0 {
		Logger.Warningf("request %s %s returned warnings: %s", params.Method, params.Path, strings.Join(result.Warnings, "; "))
	}

	isJSON := strings.Contains(resp.header.Get("Content-Type"), "json")
	switch {
	case params.Method == http.MethodHead:
		result.Body = resp.status < 400
	case len(resp.body) == 0:
		result.Body = nil
	case isJSON && opts.Into != nil && !failed:
		if err := t.cfg.Serializer.Deserialize(resp.body, opts.Into); err != nil {
			return nil, t.finish(meta, start, outcomeDecode, err)
		}
		result.Body = opts.Into
	case isJSON:
		var decoded any
		if err := t.cfg.Serializer.Deserialize(resp.body, &decoded); err != nil {
			return nil, t.finish(meta, start, outcomeDecode, err)
		}
		result.Body = decoded
	default:
		result.Body = string(resp.body)
	}

	if failed {
		return result, t.finish(meta, start, outcomeResponseError, &common.ResponseError{
			StatusCode: resp.status,
			Body:       result.Body,
			Headers:    resp.header,
			Meta:       meta,
		})
	}
	t.finish(meta, start, outcomeSuccess, nil)
	return result, nil
}

// finish records the outcome of a request and emits the response event
func (t *Transport) finish(meta *common.RequestMeta, start time.Time, outcome string, err error) error {
	t.metrics.request(outcome, start)
	t.cfg.Events.Emit(common.Event{Type: common.EventResponse, Meta: meta, Err: err})
	if err != nil && !meta.Sniffing {
		Logger.Debugf("request %s (%s %s) failed after %d attempt(s): %v", meta.RequestID, meta.Method, meta.Path, meta.Attempts, err)
	}
	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (t *Transport) requestID(params Params, opts *Options) string {
	if opts.ID != "" {
		return opts.ID
	}
	if t.cfg.GenerateRequestID != nil {
		return t.cfg.GenerateRequestID(params, opts)
	}
	return strconv.FormatUint(t.requestCounter.Add(1), 10)
}

// encodeBody serializes the request payload, nil means no body
func (t *Transport) encodeBody(params Params) ([]byte, error) {
	if params.BulkBody != nil {
		return t.cfg.Serializer.NDSerialize(params.BulkBody)
	}
	switch body := params.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return body, nil
	case string:
		if body == "" {
			return nil, nil
		}
		return []byte(body), nil
	default:
		return t.cfg.Serializer.Serialize(body)
	}
}

// buildHeader assembles the request headers and compresses the body if enabled
func (t *Transport) buildHeader(params Params, opts *Options, body []byte) (http.Header, []byte, error) {
	header := http.Header{}
	header.Set("User-Agent", t.userAgent)
	for key, value := range t.cfg.Headers {
		header.Set(key, value)
	}
	for key, value := range opts.Headers {
		header.Set(key, value)
	}
	if opts.OpaqueID != "" {
		header.Set("X-Opaque-Id", t.cfg.OpaqueIDPrefix+opts.OpaqueID)
	}

	compression := t.cfg.Compression
	if opts.Compression != nil {
		compression = *opts.Compression
	}
	if compression == common.CompressionGzip || t.cfg.SuggestCompression {
		header.Set("Accept-Encoding", "gzip,deflate")
	}

	if body != nil {
		if header.Get("Content-Type") == "" {
			if params.BulkBody != nil {
				header.Set("Content-Type", "application/x-ndjson")
			} else {
				header.Set("Content-Type", "application/json")
			}
		}
		if compression == common.CompressionGzip {
			compressed, err := gzipBody(body)
			if err != nil {
				return nil, nil, &common.SerializationError{Err: err, Data: params.Body}
			}
			header.Set("Content-Encoding", "gzip")
			body = compressed
		}
	}
	return header, body, nil
}

func mergeQuery(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
