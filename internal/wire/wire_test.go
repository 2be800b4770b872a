package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Snapshot {
	t.Helper()
	s, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return s
}

func mustEncode(t *testing.T, s Snapshot) []byte {
	t.Helper()
	b, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func TestEncodeDecodeEmptyAndNonEmpty(t *testing.T) {
	cases := []Snapshot{
		{Collection: "books", Version: 0, Payload: nil},
		{Collection: "genre", Version: 1729300000000001, Payload: []byte(`[{"id":"a"}]`)},
		{Collection: "Year", Version: math.MaxUint64, Payload: []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if got.Collection != tc.Collection {
			t.Fatalf("collection mismatch: got %q want %q", got.Collection, tc.Collection)
		}
		if got.Version != tc.Version {
			t.Fatalf("version mismatch: got %d want %d", got.Version, tc.Version)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Snapshot{Collection: "books", Version: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestDecodeCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Snapshot{Collection: "c", Version: 1, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badFormat := append([]byte(nil), enc...)
	badFormat[4] = format + 1
	if _, err := Decode(badFormat); err == nil {
		t.Fatalf("expected error on bad format")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindSnapshot + 1
	if _, err := Decode(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// nameLen sits at 14..16; announce more than available
	badName := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badName[14:16], 500)
	if _, err := Decode(badName); err == nil {
		t.Fatalf("expected error on name length beyond buffer")
	}

	// plen sits right after the 1-byte name
	badLen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badLen[17:21], uint32(len("abc")+1))
	if _, err := Decode(badLen); err == nil {
		t.Fatalf("expected error on payload length beyond buffer")
	}

	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := Decode(enc[:10]); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestEncodeCollectionNameValidation(t *testing.T) {
	if _, err := Encode(Snapshot{Collection: ""}); err == nil {
		t.Fatalf("expected error on empty collection")
	}
	if _, err := Encode(Snapshot{Collection: strings.Repeat("a", 0x10000)}); err == nil {
		t.Fatalf("expected error on name length > 0xFFFF")
	}
	if _, err := Encode(Snapshot{Collection: strings.Repeat("b", 0xFFFF)}); err != nil {
		t.Fatalf("boundary name length should succeed: %v", err)
	}
}

func TestDecodeZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Snapshot{Collection: "books", Version: 1, Payload: []byte("Z")})
	s := mustDecode(t, enc)
	s.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}
