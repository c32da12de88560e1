package serializer

// ISerializer converts payloads to and from the wire format of the cluster
type ISerializer interface {
	// Serialize encodes a value into a JSON document
	// It returns a *common.SerializationError if the value cannot be encoded
	Serialize(v any) ([]byte, error)
	// Deserialize decodes a JSON document into v (which must be a pointer)
	// It returns a *common.DeserializationError if the payload is malformed or unsafe
	Deserialize(data []byte, v any) error
	// NDSerialize encodes a list of values as newline delimited JSON,
	// strings and byte slices are written verbatim
	NDSerialize(items []any) ([]byte, error)
	// QSerialize encodes query parameters, slices become comma separated lists
	QSerialize(query map[string]any) string
}

// Options configures the JSON serializer
type Options struct {
	// DisablePrototypePoisoningProtection turns off the forbidden key check
	DisablePrototypePoisoningProtection bool
	// EnableLongNumeralSupport decodes integers outside the float64 safe range
	// as *big.Int when decoding into a generic destination
	EnableLongNumeralSupport bool
}
