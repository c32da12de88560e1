package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/serializer"
	"github.com/ValentinKolb/dTransport/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// PluginContext is handed to a plugin factory. Request is bound to the
// transport of the client the plugin is resolved for.
type PluginContext struct {
	Request    func(ctx context.Context, params transport.Params, opts *transport.Options) (*transport.Result, error)
	Serializer serializer.ISerializer
	Events     *common.EventBus
}

// PluginFactory creates the value a client exposes under the plugin name
type PluginFactory func(pc PluginContext) (any, error)

type pluginRegistration struct {
	name     string
	factory  PluginFactory
	override bool
}

// resolvePlugins runs every factory in registration order
func resolvePlugins(regs []pluginRegistration, pc PluginContext) (*xsync.MapOf[string, any], error) {
	plugins := xsync.NewMapOf[string, any]()
	for _, reg := range regs {
		if _, exists := plugins.Load(reg.name); exists && !reg.override {
			return nil, common.NewConfigurationError("plugin %q already exists", reg.name)
		}
		value, err := reg.factory(pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create plugin %s: %w", reg.name, err)
		}
		plugins.Store(reg.name, value)
	}
	return plugins, nil
}
