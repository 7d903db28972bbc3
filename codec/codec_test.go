package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_StringRoundTrip(t *testing.T) {
	c := New(false, 0)
	data, flags, err := c.Encode("hello world")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flags)

	var out string
	require.NoError(t, c.Decode(data, flags, &out))
	assert.Equal(t, "hello world", out)
}

func TestEncodeDecode_BytesRoundTrip(t *testing.T) {
	c := New(false, 0)
	data, flags, err := c.Encode([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flags)

	var out []byte
	require.NoError(t, c.Decode(data, flags, &out))
	assert.Equal(t, []byte{1, 2, 3}, out)
}

type sample struct {
	Name string
	N    int
}

func TestEncodeDecode_StructIsSerializedFlagged(t *testing.T) {
	c := New(false, 0)
	in := sample{Name: "x", N: 7}
	data, flags, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, FlagSerialized, flags&FlagSerialized)

	var out sample
	require.NoError(t, c.Decode(data, flags, &out))
	assert.Equal(t, in, out)
}

func TestEncode_CompressesAboveThreshold(t *testing.T) {
	c := New(true, 16)
	big := strings.Repeat("a", 1024)
	data, flags, err := c.Encode(big)
	require.NoError(t, err)
	assert.Equal(t, FlagCompressed, flags&FlagCompressed)
	assert.Less(t, len(data), len(big))

	var out string
	require.NoError(t, c.Decode(data, flags, &out))
	assert.Equal(t, big, out)
}

func TestEncode_BelowThresholdNotCompressed(t *testing.T) {
	c := New(true, 1024)
	small := "tiny"
	_, flags, err := c.Encode(small)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flags&FlagCompressed)
}

func TestEncode_ExactlyAtThresholdNotCompressed(t *testing.T) {
	c := New(true, 16)
	exact := strings.Repeat("a", 16)
	_, flags, err := c.Encode(exact)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flags&FlagCompressed)
}

func TestEncode_CompressDisabledNeverCompresses(t *testing.T) {
	c := New(false, 1)
	big := strings.Repeat("b", 4096)
	_, flags, err := c.Encode(big)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), flags&FlagCompressed)
}

func TestEncodeDecode_CompressedAndSerializedTogether(t *testing.T) {
	c := New(true, 8)
	in := sample{Name: strings.Repeat("z", 256), N: 99}
	data, flags, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, FlagSerialized|FlagCompressed, flags)

	var out sample
	require.NoError(t, c.Decode(data, flags, &out))
	assert.Equal(t, in, out)
}

func TestDecode_UnflaggedRequiresStringOrBytesPointer(t *testing.T) {
	c := New(false, 0)
	data, flags, err := c.Encode("plain")
	require.NoError(t, err)

	var out int
	err = c.Decode(data, flags, &out)
	assert.Error(t, err)
}
