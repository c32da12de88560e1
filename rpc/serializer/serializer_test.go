package serializer

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of configuration name to factory function
var testSerializers = map[string]func() ISerializer{
	"Default":      func() ISerializer { return NewJSONSerializer(Options{}) },
	"Unprotected":  func() ISerializer { return NewJSONSerializer(Options{DisablePrototypePoisoningProtection: true}) },
	"LongNumerals": func() ISerializer { return NewJSONSerializer(Options{EnableLongNumeralSupport: true}) },
}

// TestSerializerRoundTrip tests that documents survive an encode/decode cycle with every configuration
func TestSerializerRoundTrip(t *testing.T) {
	type document struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
		Count int64    `json:"count"`
	}
	original := document{Title: "hello", Tags: []string{"a", "b"}, Count: 42}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(original)
			require.NoError(t, err)
			assert.JSONEq(t, `{"title":"hello","tags":["a","b"],"count":42}`, string(data))

			var result document
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, original, result)
		})
	}
}

func TestSerializeFailures(t *testing.T) {
	serializer := NewJSONSerializer(Options{})

	t.Run("Cycle", func(t *testing.T) {
		cyclic := map[string]any{}
		cyclic["self"] = cyclic

		_, err := serializer.Serialize(cyclic)
		var serErr *common.SerializationError
		require.True(t, errors.As(err, &serErr), "expected SerializationError, got %v", err)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := serializer.Serialize(map[string]any{"ch": make(chan int)})
		var serErr *common.SerializationError
		require.True(t, errors.As(err, &serErr), "expected SerializationError, got %v", err)
	})
}

func TestDeserializeMalformed(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var body any
			err := factory().Deserialize([]byte(`{"a":`), &body)

			var desErr *common.DeserializationError
			require.True(t, errors.As(err, &desErr), "expected DeserializationError, got %v", err)
			assert.Equal(t, []byte(`{"a":`), desErr.Data)
		})
	}
}

// TestPrototypePoisoning tests that forbidden keys are rejected at every depth and in escaped form
func TestPrototypePoisoning(t *testing.T) {
	rejected := map[string]string{
		"TopLevelProto":   `{"__proto__":{"isAdmin":true}}`,
		"Constructor":     `{"constructor":{"prototype":{"isAdmin":true}}}`,
		"Prototype":       `{"a":1,"prototype":2}`,
		"Nested":          `{"a":{"b":[{"c":1},{"__proto__":{}}]}}`,
		"WhitespaceColon": `{"__proto__"   :  {}}`,
		"UnicodeEscaped":  `{"\u005f_proto__":{"isAdmin":true}}`,
		"UpperHexEscape":  `{"\u005F\u005Fproto__":{}}`,
		"EscapedLetters":  `{"\u0063onstruc\u0074or":{}}`,
	}
	for name, payload := range rejected {
		t.Run(name, func(t *testing.T) {
			serializer := NewJSONSerializer(Options{})
			dest := map[string]any{"untouched": true}

			err := serializer.Deserialize([]byte(payload), &dest)
			var desErr *common.DeserializationError
			require.True(t, errors.As(err, &desErr), "expected DeserializationError, got %v", err)
			assert.Equal(t, map[string]any{"untouched": true}, dest)
		})
	}

	accepted := map[string]string{
		"KeyAsValue":      `{"a":"__proto__"}`,
		"KeyInArray":      `{"a":["constructor","prototype"]}`,
		"SimilarKey":      `{"__proto":1,"constructors":2}`,
		"QuotedInsideStr": `{"text":"say \"__proto__\": hi"}`,
	}
	for name, payload := range accepted {
		t.Run(name, func(t *testing.T) {
			var body any
			require.NoError(t, NewJSONSerializer(Options{}).Deserialize([]byte(payload), &body))
		})
	}

	t.Run("Disabled", func(t *testing.T) {
		serializer := NewJSONSerializer(Options{DisablePrototypePoisoningProtection: true})
		var body map[string]any
		require.NoError(t, serializer.Deserialize([]byte(`{"__proto__":{"isAdmin":true}}`), &body))
		assert.Contains(t, body, "__proto__")
	})
}

func TestLongNumerals(t *testing.T) {
	payload := []byte(`{"big":18014398509481982,"negative":-18014398509481982,"small":12,"edge":9007199254740991,"fraction":1.5,"list":[36028797018963968]}`)

	t.Run("Enabled", func(t *testing.T) {
		serializer := NewJSONSerializer(Options{EnableLongNumeralSupport: true})
		var body any
		require.NoError(t, serializer.Deserialize(payload, &body))

		doc := body.(map[string]any)
		expectedBig, _ := new(big.Int).SetString("18014398509481982", 10)
		expectedNeg, _ := new(big.Int).SetString("-18014398509481982", 10)
		expectedList, _ := new(big.Int).SetString("36028797018963968", 10)

		require.IsType(t, &big.Int{}, doc["big"])
		assert.Equal(t, 0, expectedBig.Cmp(doc["big"].(*big.Int)))
		require.IsType(t, &big.Int{}, doc["negative"])
		assert.Equal(t, 0, expectedNeg.Cmp(doc["negative"].(*big.Int)))
		assert.Equal(t, float64(12), doc["small"])
		assert.Equal(t, float64(9007199254740991), doc["edge"])
		assert.Equal(t, 1.5, doc["fraction"])

		list := doc["list"].([]any)
		require.IsType(t, &big.Int{}, list[0])
		assert.Equal(t, 0, expectedList.Cmp(list[0].(*big.Int)))
	})

	t.Run("Disabled", func(t *testing.T) {
		var body any
		require.NoError(t, NewJSONSerializer(Options{}).Deserialize(payload, &body))
		assert.IsType(t, float64(0), body.(map[string]any)["big"])
	})

	t.Run("TypedDestination", func(t *testing.T) {
		var body struct {
			Big int64 `json:"big"`
		}
		serializer := NewJSONSerializer(Options{EnableLongNumeralSupport: true})
		require.NoError(t, serializer.Deserialize(payload, &body))
		assert.Equal(t, int64(18014398509481982), body.Big)
	})
}

func TestNDSerialize(t *testing.T) {
	serializer := NewJSONSerializer(Options{})

	data, err := serializer.NDSerialize([]any{
		map[string]any{"index": map[string]any{"_index": "test"}},
		`{"raw":true}`,
		[]byte(`{"bytes":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"index\":{\"_index\":\"test\"}}\n{\"raw\":true}\n{\"bytes\":1}\n", string(data))

	empty, err := serializer.NDSerialize(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = serializer.NDSerialize([]any{make(chan int)})
	var serErr *common.SerializationError
	assert.True(t, errors.As(err, &serErr))
}

func TestQSerialize(t *testing.T) {
	serializer := NewJSONSerializer(Options{})

	assert.Equal(t, "", serializer.QSerialize(nil))
	assert.Equal(t,
		"filter_path=a%2Cb&ids=1%2C2&pretty=true&q=a+b",
		serializer.QSerialize(map[string]any{
			"pretty":      true,
			"filter_path": []string{"a", "b"},
			"ids":         []int{1, 2},
			"skip":        nil,
			"q":           "a b",
		}),
	)
}
