package wire

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	in := Entry{
		Schema:    3,
		WrittenAt: 1735689600123,
		Scope:     "school1_2024-2025",
		Payload:   []byte(`{"id":"x"}`),
	}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Schema != in.Schema || out.WrittenAt != in.WrittenAt || out.Scope != in.Scope {
		t.Fatalf("envelope mismatch: %+v vs %+v", out, in)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload mismatch: %q vs %q", out.Payload, in.Payload)
	}
}

func TestEmptyPayload(t *testing.T) {
	out, err := Decode(Encode(Entry{Schema: 1, Scope: "s"}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out.Payload) != 0 {
		t.Fatalf("expected empty payload, got %q", out.Payload)
	}
}

// Decode must reject trailing bytes (strict framing).
func TestDecodeRejectsTrailing(t *testing.T) {
	b := Encode(Entry{Schema: 1, Scope: "s", Payload: []byte("x")})
	b = append(b, 0xDE, 0xAD)
	if _, err := Decode(b); err == nil {
		t.Fatalf("Decode should reject trailing bytes")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("short"),
		[]byte("not-wire-format-at-all"),
	}
	for _, b := range cases {
		if _, err := Decode(b); err == nil {
			t.Fatalf("Decode should reject %q", b)
		}
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	b := Encode(Entry{Schema: 2, Scope: "scope", Payload: []byte("payload")})
	for i := 1; i < len(b); i++ {
		if _, err := Decode(b[:i]); err == nil {
			t.Fatalf("Decode should reject truncation at %d", i)
		}
	}
}

func TestEncodePanicsOnEmptyScope(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Encode should panic on empty scope")
		}
	}()
	Encode(Entry{Schema: 1})
}
