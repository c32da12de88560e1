package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dTransport/rpc/common"
	jsoniter "github.com/json-iterator/go"
)

// maxSafeInteger is the largest integer a float64 represents exactly (2^53 - 1)
const maxSafeInteger = 1<<53 - 1

var (
	// decodeAPI is used for all decoding, numberAPI when long numerals are enabled
	decodeAPI = jsoniter.ConfigCompatibleWithStandardLibrary
	numberAPI = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()

	// forbiddenKeys may never appear as object keys in a decoded payload
	forbiddenKeys = []string{"__proto__", "constructor", "prototype"}

	// suspiciousKeyPattern is a cheap pre check on the raw payload. Only when
	// it matches the payload is decoded generically and walked key by key.
	suspiciousKeyPattern = buildKeyPattern(forbiddenKeys)

	safeMin = big.NewInt(-maxSafeInteger)
	safeMax = big.NewInt(maxSafeInteger)
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer(opts Options) ISerializer {
	return &jsonSerializerImpl{opts: opts}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct {
	opts Options
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (j *jsonSerializerImpl) Serialize(v any) ([]byte, error) {
	// encoding/json detects reference cycles, jsoniter would recurse until the stack overflows
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &common.SerializationError{Err: err, Data: v}
	}
	return data, nil
}

func (j *jsonSerializerImpl) Deserialize(data []byte, v any) error {
	if !j.opts.DisablePrototypePoisoningProtection && suspiciousKeyPattern.Match(data) {
		var probe any
		if err := decodeAPI.Unmarshal(data, &probe); err != nil {
			return &common.DeserializationError{Err: err, Data: data}
		}
		if key, found := findForbiddenKey(probe); found {
			return &common.DeserializationError{
				Err:  fmt.Errorf("object contains forbidden prototype property %q", key),
				Data: data,
			}
		}
	}

	if target, ok := v.(*any); ok && j.opts.EnableLongNumeralSupport {
		var decoded any
		if err := numberAPI.Unmarshal(data, &decoded); err != nil {
			return &common.DeserializationError{Err: err, Data: data}
		}
		converted, err := convertNumbers(decoded)
		if err != nil {
			return &common.DeserializationError{Err: err, Data: data}
		}
		*target = converted
		return nil
	}

	if err := decodeAPI.Unmarshal(data, v); err != nil {
		return &common.DeserializationError{Err: err, Data: data}
	}
	return nil
}

func (j *jsonSerializerImpl) NDSerialize(items []any) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		switch typed := item.(type) {
		case string:
			buf.WriteString(typed)
		case []byte:
			buf.Write(typed)
		default:
			data, err := j.Serialize(item)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (j *jsonSerializerImpl) QSerialize(query map[string]any) string {
	return encodeQuery(query)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// findForbiddenKey walks a generically decoded document and reports the
// first forbidden object key at any nesting level
func findForbiddenKey(node any) (string, bool) {
	switch typed := node.(type) {
	case map[string]any:
		for key, value := range typed {
			for _, forbidden := range forbiddenKeys {
				if key == forbidden {
					return key, true
				}
			}
			if key, found := findForbiddenKey(value); found {
				return key, true
			}
		}
	case []any:
		for _, value := range typed {
			if key, found := findForbiddenKey(value); found {
				return key, true
			}
		}
	}
	return "", false
}

// convertNumbers replaces the number literals produced by a UseNumber decode:
// integers inside the safe range and all fractions become float64, larger
// integers become *big.Int
func convertNumbers(node any) (any, error) {
	if literal, ok := jsoniter.CastJsonNumber(node); ok {
		return parseNumber(literal)
	}

	switch typed := node.(type) {
	case map[string]any:
		for key, value := range typed {
			converted, err := convertNumbers(value)
			if err != nil {
				return nil, err
			}
			typed[key] = converted
		}
	case []any:
		for i, value := range typed {
			converted, err := convertNumbers(value)
			if err != nil {
				return nil, err
			}
			typed[i] = converted
		}
	}
	return node, nil
}

func parseNumber(literal string) (any, error) {
	if !strings.ContainsAny(literal, ".eE") {
		n, ok := new(big.Int).SetString(literal, 10)
		if ok {
			if n.Cmp(safeMin) < 0 || n.Cmp(safeMax) > 0 {
				return n, nil
			}
			return float64(n.Int64()), nil
		}
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number literal %q: %w", literal, err)
	}
	return f, nil
}

// buildKeyPattern matches `"<key>"\s*:` for every key, accepting \uXXXX
// escapes for each character of the key
func buildKeyPattern(keys []string) *regexp.Regexp {
	alternatives := make([]string, len(keys))
	for i, key := range keys {
		var sb strings.Builder
		for _, c := range key {
			hex := fmt.Sprintf("%04x", c)
			var escaped strings.Builder
			for _, h := range hex {
				if h >= 'a' && h <= 'f' {
					escaped.WriteString("[" + string(h) + strings.ToUpper(string(h)) + "]")
				} else {
					escaped.WriteRune(h)
				}
			}
			sb.WriteString(`(?:` + regexp.QuoteMeta(string(c)) + `|\\u` + escaped.String() + `)`)
		}
		alternatives[i] = sb.String()
	}
	return regexp.MustCompile(`"(?:` + strings.Join(alternatives, "|") + `)"\s*:`)
}
