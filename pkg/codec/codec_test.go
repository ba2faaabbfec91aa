package codec

import (
	"bytes"
	"testing"
)

func TestGobRoundTrip(t *testing.T) {
	type record struct {
		Name  string
		Count int
	}

	var c Gob
	data, err := c.Encode(record{Name: "blk", Count: 7})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var out record
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Name != "blk" || out.Count != 7 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestGobEncodeUnsupported(t *testing.T) {
	var c Gob
	if _, err := c.Encode(func() {}); err == nil {
		t.Fatal("expected encode error for a func value")
	}
}

func TestRawPassthrough(t *testing.T) {
	var c Raw
	in := []byte("raw bytes")
	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Equal(data, in) {
		t.Error("raw encode must pass bytes through")
	}

	var out []byte
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("raw decode must pass bytes through")
	}
}

func TestRawRejectsNonBytes(t *testing.T) {
	var c Raw
	if _, err := c.Encode(42); err == nil {
		t.Fatal("expected error for non-byte value")
	}
	var out string
	if err := c.Decode([]byte("x"), &out); err == nil {
		t.Fatal("expected error for non-byte target")
	}
}
