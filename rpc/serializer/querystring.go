package serializer

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
)

// encodeQuery turns query parameters into a query string. Nil values are
// dropped (the cluster rejects keys without a value), slices are joined with
// commas. Keys are sorted.
func encodeQuery(query map[string]any) string {
	if len(query) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range query {
		if value == nil {
			continue
		}
		values.Set(key, formatQueryValue(value))
	}
	return values.Encode()
}

func formatQueryValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []string:
		return strings.Join(typed, ",")
	case fmt.Stringer:
		return typed.String()
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(value)
}
