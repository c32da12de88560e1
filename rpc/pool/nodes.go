package pool

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/connection"
)

// Roles is the role presence map of a node
type Roles = connection.Roles

// NodeDescriptor describes a node to add to the pool. It only lives for the
// duration of an AddConnection or Update call.
type NodeDescriptor struct {
	// ID defaults to the url without credentials
	ID    string
	URL   *url.URL
	Roles Roles
}

// ConnectionID returns the id the connection for this node will carry
func (n NodeDescriptor) ConnectionID() string {
	if n.ID != "" {
		return n.ID
	}
	return normalizeURL(n.URL).String()
}

// NodeInfo is one entry of the nodes response of the cluster
type NodeInfo struct {
	Name    string    `json:"name,omitempty"`
	Host    string    `json:"host,omitempty"`
	IP      string    `json:"ip,omitempty"`
	Version string    `json:"version,omitempty"`
	Roles   []string  `json:"roles,omitempty"`
	HTTP    *HTTPInfo `json:"http,omitempty"`
}

// HTTPInfo holds the http section of a node
type HTTPInfo struct {
	PublishAddress string `json:"publish_address"`
}

// NodesResponse is the body of the sniff endpoint
type NodesResponse struct {
	Nodes map[string]NodeInfo `json:"nodes"`
}

// URLToHost parses a node url given as string
func URLToHost(raw string) (NodeDescriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return NodeDescriptor{}, common.NewConfigurationError("invalid node url %q: %v", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return NodeDescriptor{}, common.NewConfigurationError("invalid node url %q: scheme and host are required", raw)
	}
	return FromURL(u), nil
}

// FromURL wraps a url into a node descriptor
func FromURL(u *url.URL) NodeDescriptor {
	return NodeDescriptor{URL: u}
}

// NodesToHost converts the nodes of a sniff response into node descriptors,
// sorted by node id. Nodes without a http publish address are skipped.
func NodesToHost(nodes map[string]NodeInfo, scheme string) []NodeDescriptor {
	if scheme == "" {
		scheme = "http"
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	hosts := make([]NodeDescriptor, 0, len(ids))
	for _, id := range ids {
		node := nodes[id]
		if node.HTTP == nil || node.HTTP.PublishAddress == "" {
			Logger.Debugf("skipping node %s without http publish address", id)
			continue
		}

		u, err := parsePublishAddress(node.HTTP.PublishAddress, scheme)
		if err != nil {
			Logger.Warningf("skipping node %s: %v", id, err)
			continue
		}

		descriptor := NodeDescriptor{ID: id, URL: u}
		if node.Roles != nil {
			descriptor.Roles = connection.RolesFromList(node.Roles)
		}
		hosts = append(hosts, descriptor)
	}
	return hosts
}

// parsePublishAddress understands `ip:port`, `[ipv6]:port` and
// `hostname/ip:port`. In the last form the hostname is used together with
// the trailing port.
func parsePublishAddress(address, scheme string) (*url.URL, error) {
	if strings.HasPrefix(address, "http") {
		return url.Parse(address)
	}

	if slash := strings.Index(address, "/"); slash >= 0 {
		hostname, rest := address[:slash], address[slash+1:]
		colon := strings.LastIndex(rest, ":")
		if colon < 0 {
			return nil, common.NewConfigurationError("publish address %q has no port", address)
		}
		address = net.JoinHostPort(hostname, rest[colon+1:])
	}

	u, err := url.Parse(scheme + "://" + address)
	if err != nil {
		return nil, common.NewConfigurationError("invalid publish address %q: %v", address, err)
	}
	return u, nil
}

// DefaultNodeFilter skips nodes that only act as cluster manager. Nodes
// with unknown roles are accepted.
func DefaultNodeFilter(conn *connection.Connection) bool {
	roles := conn.Roles()
	if roles == nil {
		return true
	}
	return !(roles.IsClusterManager() && !roles.Has(connection.RoleData) && !roles.Has(connection.RoleIngest))
}

func normalizeURL(u *url.URL) *url.URL {
	clean := *u
	clean.User = nil
	if clean.Path == "" {
		clean.Path = "/"
	}
	return &clean
}
