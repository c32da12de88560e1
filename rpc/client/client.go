package client

import (
	"context"
	"io"
	"net/url"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
	"github.com/ValentinKolb/dTransport/rpc/pool"
	"github.com/ValentinKolb/dTransport/rpc/serializer"
	"github.com/ValentinKolb/dTransport/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger(common.LoggerClient)

// Client bundles a serializer, a connection pool and a transport. Children
// created with Child share the pool, the serializer and the event bus of
// their parent but own their transport.
type Client struct {
	cfg  common.ClientConfig
	opts options

	serializer serializer.ISerializer
	pool       pool.IConnectionPool
	events     *common.EventBus
	transport  *transport.Transport
	plugins    *xsync.MapOf[string, any]

	// child clients never empty the shared pool
	child bool
}

// New validates the configuration, creates the pool with the configured
// nodes and starts the transport
func New(cfg common.ClientConfig, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	if cfg.Cloud != nil {
		if err := applyCloud(&cfg, &o); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if auth := authFromNodes(cfg.Nodes); auth != nil {
		merged := auth
		if cfg.Auth != nil {
			copied := *cfg.Auth
			copied.Username, copied.Password = auth.Username, auth.Password
			merged = &copied
		}
		cfg.Auth = merged
	}

	hosts := make([]pool.NodeDescriptor, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		host, err := pool.URLToHost(node)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}

	var proxy *url.URL
	if cfg.Proxy != "" {
		var err error
		if proxy, err = url.Parse(cfg.Proxy); err != nil {
			return nil, common.NewConfigurationError("invalid proxy url %q: %v", cfg.Proxy, err)
		}
	}

	events := o.events
	if events == nil {
		events = common.NewEventBus()
	}

	poolCfg := pool.Config{
		Auth:              cfg.Auth,
		TLSConfig:         o.tlsConfig,
		Proxy:             proxy,
		ResurrectStrategy: cfg.ResurrectStrategy,
		PingTimeout:       cfg.PingTimeout,
		SniffEnabled:      cfg.SniffEnabled(),
		Events:            events,
	}
	var p pool.IConnectionPool
	if cfg.Cloud != nil {
		p = pool.NewCloudConnectionPool(poolCfg)
	} else {
		p = pool.NewConnectionPool(poolCfg)
	}
	if _, err := p.AddConnection(hosts...); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:  cfg,
		opts: o,
		serializer: serializer.NewJSONSerializer(serializer.Options{
			DisablePrototypePoisoningProtection: cfg.DisablePrototypePoisoningProtection,
			EnableLongNumeralSupport:            cfg.EnableLongNumeralSupport,
		}),
		pool:   p,
		events: events,
	}
	if err := c.start(""); err != nil {
		_ = p.Empty()
		return nil, err
	}

	Logger.Infof("client %s created with %d node(s)", cfg.Name, p.Size())
	Logger.Debugf("client configuration:%s", cfg.String())
	return c, nil
}

// Child creates a client sharing the pool, the serializer and the event bus
// of c. modify receives a copy of the configuration of c; settings of the
// pool (nodes, resurrect strategy, proxy, ...) are ignored. The options of c
// are inherited and extended by opts.
func (c *Client) Child(modify func(cfg *common.ClientConfig), opts ...Option) (*Client, error) {
	cfg := c.cfg
	cfg.Headers = cloneHeaders(c.cfg.Headers)
	if modify != nil {
		modify(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := c.opts
	o.plugins = append([]pluginRegistration(nil), c.opts.plugins...)
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	child := &Client{
		cfg:        cfg,
		opts:       o,
		serializer: c.serializer,
		pool:       c.pool,
		events:     c.events,
		child:      true,
	}

	// credentials of a child are sent as a header, the shared connections
	// keep the credentials of the parent
	var auth string
	if cfg.Auth != c.cfg.Auth {
		auth = connection.AuthorizationHeader(cfg.Auth)
	}
	if err := child.start(auth); err != nil {
		return nil, err
	}
	return child, nil
}

// start creates the transport and resolves the registered plugins
func (c *Client) start(authHeader string) error {
	selector := c.opts.nodeSelector
	if selector == nil {
		var err error
		if selector, err = pool.SelectorByName(c.cfg.NodeSelector); err != nil {
			return err
		}
	}
	filter := c.opts.nodeFilter
	if filter == nil {
		filter = pool.DefaultNodeFilter
	}

	headers := cloneHeaders(c.cfg.Headers)
	if authHeader != "" {
		if headers == nil {
			headers = map[string]string{}
		}
		headers["Authorization"] = authHeader
	}

	tr, err := transport.New(transport.Config{
		Pool:                   c.pool,
		Serializer:             c.serializer,
		Events:                 c.events,
		MaxRetries:             c.cfg.MaxRetries,
		RequestTimeout:         c.cfg.RequestTimeout,
		PingTimeout:            c.cfg.PingTimeout,
		SniffInterval:          c.cfg.SniffInterval,
		SniffOnStart:           c.cfg.SniffOnStart,
		SniffOnConnectionFault: c.cfg.SniffOnConnectionFault,
		SniffEndpoint:          c.cfg.SniffEndpoint,
		Compression:            c.cfg.Compression,
		SuggestCompression:     c.cfg.SuggestCompression,
		RetryOnStatus:          c.cfg.RetryOnStatus,
		MaxResponseSize:        c.cfg.MaxResponseSize,
		Headers:                headers,
		Name:                   c.cfg.Name,
		OpaqueIDPrefix:         c.cfg.OpaqueIDPrefix,
		NodeFilter:             filter,
		NodeSelector:           selector,
		GenerateRequestID:      c.opts.requestID,
	})
	if err != nil {
		return err
	}
	c.transport = tr

	plugins, err := resolvePlugins(c.opts.plugins, PluginContext{
		Request:    tr.Request,
		Serializer: c.serializer,
		Events:     c.events,
	})
	if err != nil {
		_ = tr.Close()
		return err
	}
	c.plugins = plugins
	return nil
}

// Request sends a request through the transport (see transport.ITransport)
func (c *Client) Request(ctx context.Context, params transport.Params, opts *transport.Options) (*transport.Result, error) {
	return c.transport.Request(ctx, params, opts)
}

// Sniff refreshes the pool from the node list of the cluster
func (c *Client) Sniff(ctx context.Context) ([]pool.NodeDescriptor, error) {
	return c.transport.Sniff(ctx, transport.ReasonDefault)
}

// Plugin returns the value a registered plugin factory produced
func (c *Client) Plugin(name string) (any, bool) {
	return c.plugins.Load(name)
}

// Name returns the configured client name
func (c *Client) Name() string { return c.cfg.Name }

// Config returns a copy of the effective configuration
func (c *Client) Config() common.ClientConfig {
	cfg := c.cfg
	cfg.Headers = cloneHeaders(c.cfg.Headers)
	return cfg
}

func (c *Client) Events() *common.EventBus { return c.events }

func (c *Client) Pool() pool.IConnectionPool { return c.pool }

func (c *Client) Serializer() serializer.ISerializer { return c.serializer }

func (c *Client) Transport() transport.ITransport { return c.transport }

// WriteMetrics writes the transport metrics in the Prometheus text format
func (c *Client) WriteMetrics(w io.Writer) {
	c.transport.WriteMetrics(w)
}

// Close stops the transport. The root client also closes every connection
// of the pool, children leave the shared pool untouched.
func (c *Client) Close() error {
	if err := c.transport.Close(); err != nil {
		return err
	}
	if c.child {
		return nil
	}
	Logger.Infof("closing client %s", c.cfg.Name)
	return c.pool.Empty()
}
