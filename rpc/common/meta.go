package common

// RequestMeta is the per call diagnostic state of one Transport.Request invocation
type RequestMeta struct {
	// RequestID is generated per request (or taken from the request options)
	RequestID string
	// Name of the client that issued the request
	Name string
	// Context is an opaque user value forwarded to event handlers
	Context any
	// Method and Path of the request
	Method string
	Path   string
	// Attempts counts the network attempts made so far (1 based)
	Attempts int
	// ConnectionID is the node used by the latest attempt
	ConnectionID string
	// Sniffing is set for requests issued by the sniffer itself
	Sniffing bool
}
