package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one key/value pair of an ordered Payload.
type Field struct {
	Key   string
	Value any
}

// Payload is a JSON object that keeps its keys in insertion order.
type Payload []Field

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeCompact(field.Key)
		if err != nil {
			return nil, err
		}
		value, err := Canonicalize(field.Value)
		if err != nil {
			return nil, fmt.Errorf("signature: field %q: %w", field.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the first value stored under key.
func (p Payload) Get(key string) (any, bool) {
	for _, field := range p {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Canonicalize returns the compact UTF-8 JSON encoding used for signing.
// []byte and json.RawMessage are taken as JSON text and only compacted. Map
// keys come out sorted; Payload and struct fields keep their order.
func Canonicalize(payload any) ([]byte, error) {
	switch typed := payload.(type) {
	case json.RawMessage:
		return compactRaw(typed)
	case []byte:
		return compactRaw(typed)
	default:
		return encodeCompact(payload)
	}
}

func compactRaw(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCompact(value any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
