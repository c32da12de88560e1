package client

import (
	"crypto/tls"
	"encoding/base64"
	"maps"
	"net/url"
	"strings"

	"github.com/ValentinKolb/dTransport/rpc/common"
)

// decodeCloudID turns a cloud id of the form `name:base64(host$instance$...)`
// into the url of the instance
func decodeCloudID(id string) (string, error) {
	_, encoded, ok := strings.Cut(id, ":")
	if !ok || encoded == "" {
		return "", common.NewConfigurationError("invalid cloud id %q: expected name:base64", id)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// some ids come without padding
		if decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "=")); err != nil {
			return "", common.NewConfigurationError("invalid cloud id %q: %v", id, err)
		}
	}
	parts := strings.Split(string(decoded), "$")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", common.NewConfigurationError("invalid cloud id %q: missing host or instance", id)
	}
	return "https://" + parts[1] + "." + parts[0], nil
}

// applyCloud replaces the nodes with the cloud instance and enables request
// compression unless configured otherwise
func applyCloud(cfg *common.ClientConfig, o *options) error {
	node, err := decodeCloudID(cfg.Cloud.ID)
	if err != nil {
		return err
	}
	cfg.Nodes = []string{node}

	if cfg.Cloud.Username != "" && cfg.Cloud.Password != "" {
		auth := common.Auth{}
		if cfg.Auth != nil {
			auth = *cfg.Auth
		}
		auth.Username, auth.Password = cfg.Cloud.Username, cfg.Cloud.Password
		cfg.Auth = &auth
	}
	if cfg.Compression == "" {
		cfg.Compression = common.CompressionGzip
	}
	cfg.SuggestCompression = true
	if o.tlsConfig == nil {
		o.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return nil
}

// authFromNodes returns the credentials of the first node url that carries
// both a username and a password
func authFromNodes(nodes []string) *common.Auth {
	for _, node := range nodes {
		u, err := url.Parse(node)
		if err != nil || u.User == nil {
			continue
		}
		password, _ := u.User.Password()
		if u.User.Username() != "" && password != "" {
			return &common.Auth{Username: u.User.Username(), Password: password}
		}
	}
	return nil
}

func cloneHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	return maps.Clone(headers)
}
