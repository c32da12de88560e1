package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dTransport/rpc/client"
	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger(common.LoggerCmd)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString breaks the help text of a flag into lines of at most Wrap
// characters. Single words longer than Wrap are never split.
func WrapString(text string) string {
	var b strings.Builder
	width := 0
	for _, word := range strings.Fields(text) {
		switch {
		case width == 0:
		case width+1+len(word) > Wrap:
			b.WriteByte('\n')
			width = 0
		default:
			b.WriteByte(' ')
			width++
		}
		b.WriteString(word)
		width += len(word)
	}
	return b.String()
}

// SetupClientFlags adds the client and logging flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()
	flags := cmd.PersistentFlags()

	// nodes and credentials
	flags.String("nodes", "http://localhost:9200", WrapString("Comma separated list of node urls. Credentials in a url are used for every node"))
	flags.String("cloud-id", "", WrapString("Cloud id of a hosted deployment, replaces --nodes"))
	flags.String("username", "", WrapString("Username for basic auth"))
	flags.String("password", "", WrapString("Password for basic auth"))
	flags.String("api-key", "", WrapString("Api key, takes precedence over username and password"))
	flags.String("proxy", "", WrapString("Url of a http proxy used for all nodes"))

	// requests
	flags.String("name", defaults.Name, WrapString("Name of the client, reported in events and metrics"))
	flags.Duration("timeout", defaults.RequestTimeout, WrapString("Timeout of a single request attempt"))
	flags.Duration("ping-timeout", defaults.PingTimeout, WrapString("Timeout of the ping used to resurrect dead nodes"))
	flags.Int("retries", defaults.MaxRetries, WrapString("How many times a failed request is retried on another node"))
	flags.IntSlice("retry-on-status", nil, WrapString("Status codes on which the node is marked dead and the request retried (e.g. 502,503,504)"))
	flags.String("compression", "", WrapString("Request body compression (gzip or empty)"))
	flags.Bool("suggest-compression", false, WrapString("Ask the nodes for compressed responses"))
	flags.StringSlice("header", nil, WrapString("Header sent with every request as key=value, can be repeated"))
	flags.String("opaque-id-prefix", "", WrapString("Prefix of the X-Opaque-Id header"))
	flags.Int64("max-response-size", 0, WrapString("Maximum size of a decompressed response body in bytes (0 means unlimited)"))

	// pool
	flags.String("resurrect", defaults.ResurrectStrategy, WrapString("How dead nodes are brought back (ping, optimistic, none)"))
	flags.String("selector", defaults.NodeSelector, WrapString("How a node is chosen per request (round-robin, random)"))

	// sniffing
	flags.Bool("sniff-on-start", false, WrapString("Fetch the node list of the cluster when the client starts"))
	flags.Duration("sniff-interval", 0, WrapString("Fetch the node list periodically (0 disables it)"))
	flags.Bool("sniff-on-fault", false, WrapString("Fetch the node list after a connection failure"))
	flags.String("sniff-endpoint", defaults.SniffEndpoint, WrapString("Path of the node list endpoint"))

	// payloads
	flags.Bool("disable-prototype-poisoning-protection", false, WrapString("Accept responses containing __proto__, constructor or prototype keys"))
	flags.Bool("long-numerals", false, WrapString("Decode integers outside the float64 safe range without losing precision"))

	// logging
	flags.String("log-level", "warn", WrapString("Log level (debug, info, warn, error)"))
	flags.String("log-file", "", WrapString("Write logs to this file (rotated) instead of stdout"))
	flags.Int("log-max-size", 100, WrapString("Maximum size of a log file in MB before it is rotated"))
	flags.Int("log-max-backups", 3, WrapString("Number of rotated log files to keep"))
	flags.Int("log-max-age", 28, WrapString("Days to keep rotated log files"))
	flags.Bool("log-compress", false, WrapString("Compress rotated log files"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dtransport")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetLogConfig reads the logging configuration from viper
func GetLogConfig() common.LogConfig {
	return common.LogConfig{
		Level:      viper.GetString("log-level"),
		FilePath:   viper.GetString("log-file"),
		MaxSizeMB:  viper.GetInt("log-max-size"),
		MaxBackups: viper.GetInt("log-max-backups"),
		MaxAgeDays: viper.GetInt("log-max-age"),
		Compress:   viper.GetBool("log-compress"),
	}
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	conf := common.DefaultClientConfig()

	for _, node := range strings.Split(viper.GetString("nodes"), ",") {
		if node = strings.TrimSpace(node); node != "" {
			conf.Nodes = append(conf.Nodes, node)
		}
	}
	if id := viper.GetString("cloud-id"); id != "" {
		conf.Nodes = nil
		conf.Cloud = &common.CloudConfig{ID: id}
	}

	username, password, apiKey := viper.GetString("username"), viper.GetString("password"), viper.GetString("api-key")
	if username != "" || apiKey != "" {
		conf.Auth = &common.Auth{Username: username, Password: password, APIKey: apiKey}
	}

	headers, err := ParseKeyValues(viper.GetStringSlice("header"))
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	if len(headers) > 0 {
		conf.Headers = headers
	}

	conf.Name = viper.GetString("name")
	conf.Proxy = viper.GetString("proxy")
	conf.RequestTimeout = viper.GetDuration("timeout")
	conf.PingTimeout = viper.GetDuration("ping-timeout")
	conf.MaxRetries = viper.GetInt("retries")
	conf.RetryOnStatus = viper.GetIntSlice("retry-on-status")
	conf.Compression = viper.GetString("compression")
	conf.SuggestCompression = viper.GetBool("suggest-compression")
	conf.OpaqueIDPrefix = viper.GetString("opaque-id-prefix")
	conf.MaxResponseSize = viper.GetInt64("max-response-size")
	conf.ResurrectStrategy = viper.GetString("resurrect")
	conf.NodeSelector = viper.GetString("selector")
	conf.SniffOnStart = viper.GetBool("sniff-on-start")
	conf.SniffInterval = viper.GetDuration("sniff-interval")
	conf.SniffOnConnectionFault = viper.GetBool("sniff-on-fault")
	conf.SniffEndpoint = viper.GetString("sniff-endpoint")
	conf.DisablePrototypePoisoningProtection = viper.GetBool("disable-prototype-poisoning-protection")
	conf.EnableLongNumeralSupport = viper.GetBool("long-numerals")

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// NewClient creates a client from the viper configuration
func NewClient() (*client.Client, error) {
	conf, err := GetClientConfig()
	if err != nil {
		return nil, err
	}
	Logger.Debugf("creating client:%s", conf.String())
	return client.New(*conf)
}

// ParseKeyValues parses a list of key=value pairs
func ParseKeyValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		values[key] = value
	}
	return values, nil
}
