package api

import (
	"encoding/base64"
	"fmt"

	"github.com/matheus3301/imstore/internal/query"
	"google.golang.org/protobuf/types/known/structpb"
)

// Blob columns travel as {"bytes": "<base64>"} since Struct has no bytes
// kind.
const bytesKey = "bytes"

// EncodeValue converts a column value into a Struct-compatible value.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return map[string]any{bytesKey: base64.StdEncoding.EncodeToString(x)}
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return v
}

// DecodeValue reverses EncodeValue and turns integral numbers back into
// int64.
func DecodeValue(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		s, ok := m[bytesKey].(string)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("%w: object values must be {\"bytes\": base64}", query.ErrInvalidQuery)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64: %v", query.ErrInvalidQuery, err)
		}
		return b, nil
	}
	return query.Normalize(v), nil
}

// EncodeValues renders vals as a Struct-compatible map.
func EncodeValues(vals query.Values) map[string]any {
	out := make(map[string]any, len(vals))
	for k, v := range vals {
		out[k] = EncodeValue(v)
	}
	return out
}

// DecodeValues parses a values object.
func DecodeValues(m map[string]any) (query.Values, error) {
	vals := make(query.Values, len(m))
	for k, v := range m {
		d, err := DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", k, err)
		}
		vals[k] = d
	}
	return vals, nil
}

func field(in *structpb.Struct, key string) map[string]any {
	v, ok := in.GetFields()[key]
	if !ok {
		return nil
	}
	m, _ := v.AsInterface().(map[string]any)
	return m
}

func locatorOf(in *structpb.Struct) string {
	return in.GetFields()["locator"].GetStringValue()
}
