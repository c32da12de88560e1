// Package serializer converts request and response payloads between Go
// values and the JSON based wire format of the cluster. It defines a common
// interface and a JSON implementation that hardens decoding against hostile
// responses.
//
// The package focuses on:
//   - Encoding request bodies (single documents and newline delimited batches)
//   - Encoding query parameters
//   - Decoding response bodies safely
//
// Key Components:
//
//   - ISerializer: Core interface the transport depends on.
//
//   - jsonSerializerImpl: Encodes with encoding/json (which detects reference
//     cycles) and decodes with json-iterator. Unless disabled, any object that
//     contains one of the keys __proto__, constructor or prototype (at any
//     depth, escaped spellings included) is rejected with a
//     DeserializationError. With long numeral support enabled, integers outside
//     the float64 safe range decode to *big.Int instead of losing precision.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use across multiple
//	goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewJSONSerializer(serializer.Options{})
//	data, err := s.Serialize(map[string]any{"query": map[string]any{"match_all": map[string]any{}}})
//	// ... send data ...
//	var body any
//	err = s.Deserialize(responseBytes, &body)
package serializer
