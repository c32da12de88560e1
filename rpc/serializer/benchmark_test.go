package serializer

import (
	"strings"
	"testing"
)

// benchmarkPayloads returns a set of response bodies for targeted benchmarking
func benchmarkPayloads() map[string]string {
	hits := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		hits = append(hits, `{"_index":"logs","_id":"doc-`+strings.Repeat("x", i%16)+`","_score":1.0,"_source":{"message":"hello world","level":"info","count":42}}`)
	}
	return map[string]string{
		"Empty":       `{}`,
		"Acknowledge": `{"acknowledged":true}`,
		"Nodes":       `{"_nodes":{"total":1},"nodes":{"abc":{"roles":["data","ingest"],"http":{"publish_address":"127.0.0.1:9200"}}}}`,
		"SearchHits":  `{"took":3,"hits":{"total":{"value":100},"hits":[` + strings.Join(hits, ",") + `]}}`,
		"LongNumeral": `{"id":18014398509481982,"small":12}`,
	}
}

// BenchmarkSerialize benchmarks encoding of a typical search request for all configurations
func BenchmarkSerialize(b *testing.B) {
	body := map[string]any{
		"query": map[string]any{"match": map[string]any{"message": "hello world"}},
		"size":  10,
		"sort":  []any{map[string]any{"timestamp": "desc"}},
	}

	for name, factory := range testSerializers {
		b.Run(name, func(b *testing.B) {
			serializer := factory()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := serializer.Serialize(body); err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
			}
		})
	}
}

// BenchmarkDeserialize benchmarks decoding for all configurations with various payloads
func BenchmarkDeserialize(b *testing.B) {
	payloads := benchmarkPayloads()

	for name, factory := range testSerializers {
		for payloadName, payload := range payloads {
			b.Run(name+"_"+payloadName, func(b *testing.B) {
				serializer := factory()
				data := []byte(payload)
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var body any
					if err := serializer.Deserialize(data, &body); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkNDSerialize measures bulk body encoding and reports the body size
func BenchmarkNDSerialize(b *testing.B) {
	items := make([]any, 0, 200)
	for i := 0; i < 100; i++ {
		items = append(items,
			map[string]any{"index": map[string]any{"_index": "logs"}},
			map[string]any{"message": "hello world", "n": i},
		)
	}
	serializer := NewJSONSerializer(Options{})

	data, err := serializer.NDSerialize(items)
	if err != nil {
		b.Fatalf("Failed to serialize: %v", err)
	}
	b.ReportMetric(float64(len(data)), "bytes")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := serializer.NDSerialize(items); err != nil {
			b.Fatalf("Failed to serialize: %v", err)
		}
	}
}
