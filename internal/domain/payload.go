package domain

import (
	"bytes"
	"encoding/json"
)

// DecodeJSON unmarshals data into dst without routing numbers through
// float64. Untyped numbers arrive as json.Number; pass the result through
// Normalize to turn them into int64 or float64.
func DecodeJSON(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// Normalize replaces every json.Number inside v with int64 when it is
// integral and fits, float64 otherwise. Maps and slices are rewritten in
// place.
func Normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = Normalize(item)
		}
		return val
	case Payload:
		for k, item := range val {
			val[k] = Normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = Normalize(item)
		}
		return val
	default:
		return v
	}
}

// NormalizePayload is Normalize for a whole payload.
func NormalizePayload(p Payload) Payload {
	for k, v := range p {
		p[k] = Normalize(v)
	}
	return p
}
