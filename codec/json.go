package codec

import "encoding/json"

// JSON is the default codec for record payloads. Unknown fields inside
// map-shaped values pass through unchanged.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
