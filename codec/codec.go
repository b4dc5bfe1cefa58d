// Package codec defines payload (de)serialization for livecache.
//
// A Codec converts the cached value V to and from the bytes stored inside
// the entry envelope. Date-bearing fields must survive a round trip as
// comparable time values, not strings; livecache.Timestamp implements the
// marshal hooks of every codec here, so any of them can carry records.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
