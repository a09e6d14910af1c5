package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"
)

// EncodeValue gob-encodes v as an interface value so it can be decoded back
// into any. Struct payloads must be registered with gob.Register first.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	iv := v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue decodes data produced by EncodeValue into T. Payloads written
// as a concrete value rather than an interface are decoded directly.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}

	var iv any
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv)
	switch {
	case err == nil:
		if iv == nil {
			return zero, nil
		}
		v, ok := iv.(T)
		if !ok {
			return zero, fmt.Errorf("gob: payload of type %T is not a %T", iv, zero)
		}
		return v, nil
	case !mustRetryAsConcrete(err):
		return zero, err
	}

	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, err
	}
	return v, nil
}

// mustRetryAsConcrete detects the gob error raised when a concrete value is
// decoded into an interface.
func mustRetryAsConcrete(err error) bool {
	s := err.Error()
	return strings.Contains(s, "can only be decoded from remote interface") &&
		strings.Contains(s, "received concrete type")
}
