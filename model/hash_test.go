package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHash_RoundTrip(t *testing.T) {
	raw := strings.Repeat("0badc0de", 8)
	h, err := ParseHash(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, h.String())
	assert.Len(t, h.Bytes(), HashSize)
}

func TestParseHash_Invalid(t *testing.T) {
	_, err := ParseHash("zz")
	assert.Error(t, err)

	_, err = ParseHash("abcd") // valid hex, wrong length
	assert.Error(t, err)

	_, err = ParseHash(strings.Repeat("ab", 33))
	assert.Error(t, err)
}

func TestHashFromBytes(t *testing.T) {
	b := make([]byte, HashSize)
	b[0] = 0xff
	h, err := HashFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), h[0])

	_, err = HashFromBytes(b[:31])
	assert.Error(t, err)
}

func TestHash_Scan(t *testing.T) {
	want := MustParseHash(strings.Repeat("11", 32))
	var got Hash
	require.NoError(t, got.Scan(want.Bytes()))
	assert.Equal(t, want, got)

	assert.Error(t, got.Scan("not bytes"))
	assert.Error(t, got.Scan([]byte{1, 2, 3}))
}

func TestHash_JSON(t *testing.T) {
	want := MustParseHash(strings.Repeat("42", 32))
	data, err := json.Marshal(want)
	require.NoError(t, err)
	assert.Equal(t, `"`+want.String()+`"`, string(data))

	var got Hash
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}

func TestHash_Value(t *testing.T) {
	h := MustParseHash(strings.Repeat("7f", 32))
	v, err := h.Value()
	require.NoError(t, err)
	assert.Equal(t, h.Bytes(), v)
}
