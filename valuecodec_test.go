package memcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawCodec_EncodeBytes(t *testing.T) {
	flags, data, err := RawCodec{}.Encode([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flags)
	assert.Equal(t, []byte("hello"), data)
}

func TestRawCodec_EncodeString(t *testing.T) {
	_, data, err := RawCodec{}.Encode("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestRawCodec_EncodeUnsupportedType(t *testing.T) {
	_, _, err := RawCodec{}.Encode(42)
	require.Error(t, err)
	var unsupported *UnsupportedOperationError
	assert.ErrorAs(t, err, &unsupported)
}

func TestRawCodec_DecodeIntoBytes(t *testing.T) {
	var out []byte
	require.NoError(t, RawCodec{}.Decode(0, []byte("world"), &out))
	assert.Equal(t, []byte("world"), out)
}

func TestRawCodec_DecodeIntoString(t *testing.T) {
	var out string
	require.NoError(t, RawCodec{}.Decode(0, []byte("world"), &out))
	assert.Equal(t, "world", out)
}

func TestRawCodec_DecodeUnsupportedType(t *testing.T) {
	var out int
	err := RawCodec{}.Decode(0, []byte("x"), &out)
	require.Error(t, err)
}
