package common

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Enumerations
// --------------------------------------------------------------------------

const (
	ResurrectPing       = "ping"
	ResurrectOptimistic = "optimistic"
	ResurrectNone       = "none"

	SelectorRoundRobin = "round-robin"
	SelectorRandom     = "random"

	CompressionGzip = "gzip"
)

// Version of the module, reported in the User-Agent header
const Version = "1.1.0"

// Default values of a client
const (
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 30 * time.Second
	DefaultPingTimeout    = 3 * time.Second
	DefaultSniffEndpoint  = "_nodes/_all/http"
	DefaultName           = "dtransport"
)

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// Auth holds the credentials sent with every request. APIKey takes
// precedence over Username/Password.
type Auth struct {
	Username string
	Password string
	APIKey   string
}

// CloudConfig configures a client for a hosted single endpoint deployment
type CloudConfig struct {
	// ID has the form `cluster-name:base64(host$instance-id$...)`
	ID       string
	Username string
	Password string
}

// LogConfig configures the logger factory (see InitLoggers)
type LogConfig struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ClientConfig holds every plain value setting of a client. Function valued
// settings (node filter, custom selector, plugins, ...) are passed as options
// to client.New.
type ClientConfig struct {
	// Nodes are the initial node URLs
	Nodes []string
	Cloud *CloudConfig
	Auth  *Auth

	MaxRetries     int
	RequestTimeout time.Duration
	PingTimeout    time.Duration

	// SniffInterval of 0 disables periodic sniffing
	SniffInterval          time.Duration
	SniffOnStart           bool
	SniffOnConnectionFault bool
	SniffEndpoint          string

	ResurrectStrategy string
	NodeSelector      string

	// Compression is either "gzip" or empty
	Compression        string
	SuggestCompression bool

	// RetryOnStatus lists status codes on which the node is marked dead and
	// the request retried on another node (empty by default)
	RetryOnStatus []int

	// MaxResponseSize limits the decompressed response body, 0 means unlimited
	MaxResponseSize int64

	Headers        map[string]string
	Name           string
	OpaqueIDPrefix string
	Proxy          string

	DisablePrototypePoisoningProtection bool
	EnableLongNumeralSupport            bool
}

// DefaultClientConfig returns the configuration every client starts from
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:        DefaultMaxRetries,
		RequestTimeout:    DefaultRequestTimeout,
		PingTimeout:       DefaultPingTimeout,
		SniffEndpoint:     DefaultSniffEndpoint,
		ResurrectStrategy: ResurrectPing,
		NodeSelector:      SelectorRoundRobin,
		Name:              DefaultName,
	}
}

// SniffEnabled reports whether any sniff trigger is configured
func (c *ClientConfig) SniffEnabled() bool {
	return c.SniffInterval > 0 || c.SniffOnStart || c.SniffOnConnectionFault
}

// Validate checks the configuration and fills in defaults for zero durations
func (c *ClientConfig) Validate() error {
	if len(c.Nodes) == 0 && c.Cloud == nil {
		return NewConfigurationError("Missing node(s) option")
	}
	if c.MaxRetries < 0 {
		return NewConfigurationError("maxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RequestTimeout < 0 || c.PingTimeout < 0 || c.SniffInterval < 0 {
		return NewConfigurationError("timeouts and intervals must not be negative")
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.SniffEndpoint == "" {
		c.SniffEndpoint = DefaultSniffEndpoint
	}
	if c.Name == "" {
		c.Name = DefaultName
	}

	switch c.ResurrectStrategy {
	case "":
		c.ResurrectStrategy = ResurrectPing
	case ResurrectPing, ResurrectOptimistic, ResurrectNone:
	default:
		return NewConfigurationError("invalid resurrect strategy %q (expected one of ping, optimistic, none)", c.ResurrectStrategy)
	}

	switch c.NodeSelector {
	case "":
		c.NodeSelector = SelectorRoundRobin
	case SelectorRoundRobin, SelectorRandom:
	default:
		return NewConfigurationError("invalid node selector %q (expected round-robin or random)", c.NodeSelector)
	}

	if c.Compression != "" && c.Compression != CompressionGzip {
		return NewConfigurationError("invalid compression %q (expected gzip or empty)", c.Compression)
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Name", c.Name)
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Ping Timeout", c.PingTimeout.String())
	addField("Max Retries", strconv.Itoa(c.MaxRetries))
	addField("Node Selector", c.NodeSelector)
	addField("Resurrect Strategy", c.ResurrectStrategy)
	if c.Compression != "" {
		addField("Compression", c.Compression)
	} else {
		addField("Compression", "off")
	}
	if c.Auth != nil {
		if c.Auth.APIKey != "" {
			addField("Auth", "api key")
		} else {
			addField("Auth", "basic ("+c.Auth.Username+")")
		}
	}

	// Sniffing
	addSection("Sniffing")
	if c.SniffInterval > 0 {
		addField("Interval", c.SniffInterval.String())
	} else {
		addField("Interval", "off")
	}
	addField("On Start", strconv.FormatBool(c.SniffOnStart))
	addField("On Connection Fault", strconv.FormatBool(c.SniffOnConnectionFault))
	addField("Endpoint", c.SniffEndpoint)

	// Nodes
	addSection("Nodes")
	if c.Cloud != nil {
		addField("cloud", c.Cloud.ID)
	}
	for i, node := range c.Nodes {
		addField(strconv.Itoa(i), redactNode(node))
	}

	// Headers (sorted for consistent output)
	if len(c.Headers) > 0 {
		addSection("Headers")
		var keys []string
		for k := range c.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addField(k, c.Headers[k])
		}
	}

	return sb.String()
}

// redactNode masks the password of a node url
func redactNode(node string) string {
	u, err := url.Parse(node)
	if err != nil {
		return node
	}
	return u.Redacted()
}
