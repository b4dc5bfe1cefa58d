// Package wire frames cache entries for storage.
//
// Every stored value is an envelope carrying the schema version, the write
// time and the scope key alongside the codec payload. Decoding is strict:
// anything that does not frame exactly is reported as corrupt so the store
// can self-heal by deletion.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	ErrCorrupt = errors.New("livecache: corrupt entry")
	magic4     = [...]byte{'L', 'V', 'C', 'E'}
)

// Entry is the decoded envelope of one cached value.
type Entry struct {
	Schema    uint8
	WrittenAt int64 // unix millis
	Scope     string
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an entry:
//
//	magic(4) | schema(1) | writtenAt(u64 be) | slen(u16 be) | scope(slen) | plen(u32 be) | payload(plen)
func Encode(e Entry) []byte {
	if l := len(e.Scope); l == 0 || l > 0xFFFF {
		panic("livecache: invalid scope length in entry")
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 8 + 2 + len(e.Scope) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(e.Schema)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.WrittenAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Scope)))
	buf.Write(u2[:])
	buf.WriteString(e.Scope)

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)

	return buf.Bytes()
}

// Decode parses an envelope. Trailing bytes are rejected (strict framing).
func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 8 + 2
	if len(b) < hdr || !hasMagic(b) {
		return Entry{}, ErrCorrupt
	}

	off := 4
	schema := b[off]
	off++

	writtenAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	slen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if slen <= 0 || slen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	scope := string(b[off : off+slen])
	off += slen

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off { // overflow-safe, strict
		return Entry{}, ErrCorrupt
	}

	return Entry{
		Schema:    schema,
		WrittenAt: writtenAt,
		Scope:     scope,
		Payload:   b[off : off+plen],
	}, nil
}
