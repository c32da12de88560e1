package client

import (
	"crypto/tls"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/pool"
	"github.com/ValentinKolb/dTransport/rpc/transport"
)

// options holds the function valued settings of a client
type options struct {
	nodeFilter   pool.NodeFilter
	nodeSelector pool.Selector
	requestID    func(params transport.Params, opts *transport.Options) string
	tlsConfig    *tls.Config
	events       *common.EventBus
	plugins      []pluginRegistration
}

// Option to pass to `New` and `Child`
type Option func(*options) error

// WithNodeFilter replaces the default node filter, which skips nodes that
// only act as cluster manager.
func WithNodeFilter(filter pool.NodeFilter) Option {
	return func(o *options) error {
		if filter == nil {
			return common.NewConfigurationError("node filter must not be nil")
		}
		o.nodeFilter = filter
		return nil
	}
}

// WithNodeSelector replaces the selector configured by name
func WithNodeSelector(selector pool.Selector) Option {
	return func(o *options) error {
		if selector == nil {
			return common.NewConfigurationError("node selector must not be nil")
		}
		o.nodeSelector = selector
		return nil
	}
}

// WithRequestIDGenerator replaces the incrementing request id of the transport
func WithRequestIDGenerator(gen func(params transport.Params, opts *transport.Options) string) Option {
	return func(o *options) error {
		o.requestID = gen
		return nil
	}
}

// WithTLSConfig sets the `tls.Config` used by every connection of the pool.
// It has no effect on children, which share the pool of their parent.
func WithTLSConfig(tlsConf *tls.Config) Option {
	return func(o *options) error {
		if tlsConf == nil {
			return common.NewConfigurationError("tls config must not be nil")
		}
		o.tlsConfig = tlsConf.Clone()
		return nil
	}
}

// WithEventBus makes the client emit its events on an existing bus
func WithEventBus(bus *common.EventBus) Option {
	return func(o *options) error {
		o.events = bus
		return nil
	}
}

// WithPlugin registers a plugin factory under name. Creating the client
// fails if another plugin already uses the name.
func WithPlugin(name string, factory PluginFactory) Option {
	return func(o *options) error {
		return o.addPlugin(name, factory, false)
	}
}

// WithPluginOverride registers a plugin factory that replaces any plugin
// registered earlier under the same name
func WithPluginOverride(name string, factory PluginFactory) Option {
	return func(o *options) error {
		return o.addPlugin(name, factory, true)
	}
}

func (o *options) addPlugin(name string, factory PluginFactory, override bool) error {
	if name == "" {
		return common.NewConfigurationError("plugin name must not be empty")
	}
	if factory == nil {
		return common.NewConfigurationError("plugin %q has no factory", name)
	}
	o.plugins = append(o.plugins, pluginRegistration{name: name, factory: factory, override: override})
	return nil
}
