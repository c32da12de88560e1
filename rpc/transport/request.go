package transport

import (
	"net/http"
	"time"

	"github.com/ValentinKolb/dTransport/rpc/common"
)

// Params is the generic request envelope every operation is translated to
type Params struct {
	Method      string
	Path        string
	Querystring map[string]any
	// Body is sent as JSON, strings and byte slices are sent verbatim
	Body any
	// BulkBody is sent as newline delimited JSON, it takes precedence over Body
	BulkBody []any
}

// Options tune a single request. The zero value uses the transport defaults.
type Options struct {
	// Ignore lists status codes that are not turned into a ResponseError
	Ignore []int
	// RequestTimeout per attempt
	RequestTimeout time.Duration
	// MaxRetries overrides the configured retries when set
	MaxRetries *int
	// Compression overrides the configured request compression ("gzip" or "")
	Compression *string
	Headers     map[string]string
	Querystring map[string]any
	// ID is used as request id instead of a generated one
	ID string
	// OpaqueID is sent as X-Opaque-Id (prefixed with the configured prefix)
	OpaqueID string
	// Context is forwarded to event handlers
	Context any
	// Into receives the decoded body instead of a generic map
	Into any
	// MaxResponseSize overrides the configured limit when > 0
	MaxResponseSize int64
}

// Result of a request. For HEAD requests Body is a bool.
type Result struct {
	Body       any
	StatusCode int
	Headers    http.Header
	// Warnings holds the values of all Warning response headers
	Warnings []string
	Meta     *common.RequestMeta
}

// IntPtr is a helper for Options.MaxRetries
func IntPtr(v int) *int { return &v }

// StringPtr is a helper for Options.Compression
func StringPtr(v string) *string { return &v }
