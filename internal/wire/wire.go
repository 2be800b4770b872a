package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	format       byte = 1
	kindSnapshot byte = 1

	hdrLen = 4 + 1 + 1 + 8 + 2 // magic | format | kind | version | nameLen
)

var (
	ErrCorrupt = errors.New("pocketbook: corrupt cache entry")
	magic4     = [...]byte{'P', 'K', 'B', 'K'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Snapshot is one cached read result of a collection taken at Version.
type Snapshot struct {
	Collection string
	Version    uint64
	Payload    []byte
}

// Encode frames a snapshot:
//
//	magic(4) | format(1) | kind(1) | version(u64 be) | nameLen(u16 be) | name | plen(u32 be) | payload
func Encode(s Snapshot) ([]byte, error) {
	if l := len(s.Collection); l == 0 || l > 0xFFFF {
		return nil, fmt.Errorf("pocketbook: invalid collection name length %d", l)
	}
	if uint64(len(s.Payload)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("pocketbook: payload too large: %d", len(s.Payload))
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + len(s.Collection) + 4 + len(s.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(format)
	buf.WriteByte(kindSnapshot)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], s.Version)
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(s.Collection)))
	buf.Write(u2[:])
	buf.WriteString(s.Collection)

	binary.BigEndian.PutUint32(u4[:], uint32(len(s.Payload)))
	buf.Write(u4[:])
	buf.Write(s.Payload)

	return buf.Bytes(), nil
}

// Decode parses a frame produced by Encode. The returned payload aliases b.
// Trailing bytes are treated as corruption.
func Decode(b []byte) (Snapshot, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != format || b[5] != kindSnapshot {
		return Snapshot{}, ErrCorrupt
	}
	off := 6

	ver := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if nlen == 0 || nlen > len(b)-off {
		return Snapshot{}, ErrCorrupt
	}
	name := string(b[off : off+nlen])
	off += nlen

	if off+4 > len(b) {
		return Snapshot{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off {
		return Snapshot{}, ErrCorrupt
	}

	return Snapshot{Collection: name, Version: ver, Payload: b[off : off+plen]}, nil
}
