// Package codec provides the value serialization boundary for the
// allocator. The cache core only ever handles bytes; turning caller
// values into bytes is the codec's job.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec encodes caller values to bytes and back.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, out interface{}) error
}

// Gob is the default codec for arbitrary Go values.
type Gob struct{}

func (Gob) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) Decode(data []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// Raw passes byte slices through untouched and rejects anything else.
type Raw struct{}

func (Raw) Encode(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec requires []byte, got %T", v)
	}
	return b, nil
}

func (Raw) Decode(data []byte, out interface{}) error {
	p, ok := out.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec requires *[]byte, got %T", out)
	}
	*p = data
	return nil
}
