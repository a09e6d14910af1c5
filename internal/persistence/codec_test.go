package persistence

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Msg string
	N   int
}

func init() {
	gob.Register(samplePayload{})
}

func TestEncodeDecode_Nil(t *testing.T) {
	data, err := EncodeValue(nil)
	require.NoError(t, err)
	require.Nil(t, data)

	v, err := DecodeValue[any](data)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestEncodeDecode_RegisteredStructAsAny(t *testing.T) {
	data, err := EncodeValue(samplePayload{Msg: "approve", N: 2})
	require.NoError(t, err)

	v, err := DecodeValue[any](data)
	require.NoError(t, err)
	require.Equal(t, samplePayload{Msg: "approve", N: 2}, v)

	typed, err := DecodeValue[samplePayload](data)
	require.NoError(t, err)
	require.Equal(t, "approve", typed.Msg)
}

func TestDecodeValue_WrongTarget(t *testing.T) {
	data, err := EncodeValue("text")
	require.NoError(t, err)

	_, err = DecodeValue[int](data)
	require.Error(t, err)
}

func TestDecodeValue_ConcretePayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(samplePayload{Msg: "raw", N: 7}))

	v, err := DecodeValue[samplePayload](buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 7, v.N)
}

func TestMustRetryAsConcrete(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"gob mismatch", errors.New("gob: value can only be decoded from remote interface type; received concrete type main.MyType"), true},
		{"unrelated error", errors.New("some other failure"), false},
		{"only interface substring", errors.New("gob: value can only be decoded from remote interface type"), false},
		{"only concrete substring", errors.New("gob: received concrete type main.MyType"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, mustRetryAsConcrete(tc.err))
		})
	}
}
