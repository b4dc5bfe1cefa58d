package livecache

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// TimeSource tags where a Timestamp came from.
type TimeSource uint8

const (
	// SourceNone is the zero Timestamp.
	SourceNone TimeSource = iota
	// SourceServer marks an authoritative, server-assigned time.
	SourceServer
	// SourceLocal marks a local wall-clock time attached to an optimistic
	// record that the server has not confirmed yet.
	SourceLocal
	// SourceISO marks a time parsed back from storage.
	SourceISO
)

// Timestamp is a tagged variant of the three time representations that cross
// the serialization boundary: opaque server timestamps, local clock readings
// on optimistic records, and ISO-8601 strings in storage. Conversion happens
// exactly once, in the marshal/unmarshal methods; everything else compares
// plain time values.
//
// The zero Timestamp serializes as null and parses back as zero.
type Timestamp struct {
	t   time.Time
	src TimeSource
}

var (
	_ cbor.Marshaler        = Timestamp{}
	_ cbor.Unmarshaler      = (*Timestamp)(nil)
	_ msgpack.CustomEncoder = Timestamp{}
	_ msgpack.CustomDecoder = (*Timestamp)(nil)
)

// ServerTime wraps a server-assigned time.
func ServerTime(t time.Time) Timestamp { return Timestamp{t: t, src: SourceServer} }

// LocalTime wraps a local wall-clock reading.
func LocalTime(t time.Time) Timestamp { return Timestamp{t: t, src: SourceLocal} }

// ParseISO parses an RFC 3339 string into a Timestamp tagged SourceISO.
func ParseISO(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("livecache: parse timestamp %q: %w", s, err)
	}
	return Timestamp{t: t, src: SourceISO}, nil
}

func (ts Timestamp) Time() time.Time    { return ts.t }
func (ts Timestamp) Source() TimeSource { return ts.src }
func (ts Timestamp) IsZero() bool       { return ts.src == SourceNone || ts.t.IsZero() }

func (ts Timestamp) After(o Timestamp) bool  { return ts.t.After(o.t) }
func (ts Timestamp) Before(o Timestamp) bool { return ts.t.Before(o.t) }

// Equal compares instants only; the source tag is transport metadata.
func (ts Timestamp) Equal(o Timestamp) bool { return ts.t.Equal(o.t) }

// ISO renders the timestamp as RFC 3339 with nanoseconds, the storage form.
func (ts Timestamp) ISO() string { return ts.t.UTC().Format(time.RFC3339Nano) }

var jsonNull = []byte("null")

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return jsonNull, nil
	}
	return []byte(`"` + ts.ISO() + `"`), nil
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, jsonNull) {
		*ts = Timestamp{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("livecache: timestamp must be a string or null, got %q", b)
	}
	parsed, err := ParseISO(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

const cborNull = 0xf6

func (ts Timestamp) MarshalCBOR() ([]byte, error) {
	if ts.IsZero() {
		return []byte{cborNull}, nil
	}
	return cbor.Marshal(ts.ISO())
}

func (ts *Timestamp) UnmarshalCBOR(b []byte) error {
	if len(b) == 1 && b[0] == cborNull {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := cbor.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseISO(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts Timestamp) EncodeMsgpack(enc *msgpack.Encoder) error {
	if ts.IsZero() {
		return enc.EncodeNil()
	}
	return enc.EncodeString(ts.ISO())
}

func (ts *Timestamp) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch s := v.(type) {
	case nil:
		*ts = Timestamp{}
		return nil
	case string:
		parsed, err := ParseISO(s)
		if err != nil {
			return err
		}
		*ts = parsed
		return nil
	default:
		return fmt.Errorf("livecache: timestamp must be a string or nil, got %T", v)
	}
}
