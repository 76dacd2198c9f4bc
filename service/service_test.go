package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorMethodLookup(t *testing.T) {
	d := &Descriptor{Methods: []Method{
		{Input: RawBytes, Output: RawBytes},
		{Input: RawBytes, Output: RawBytes},
	}}

	assert.Equal(t, 2, d.NMethods())

	m, ok := d.Method(1)
	require.True(t, ok)
	assert.Equal(t, RawBytes, m.Input)

	_, ok = d.Method(2)
	assert.False(t, ok)
}

func TestNilDescriptorHasZeroMethods(t *testing.T) {
	var d *Descriptor
	assert.Equal(t, 0, d.NMethods())
	_, ok := d.Method(0)
	assert.False(t, ok)
}

func TestRawBytesRoundTrip(t *testing.T) {
	msg, err := RawBytes.Unmarshal([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, RawBytes.Size(msg))

	out, err := RawBytes.Marshal(nil, msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)
}

func TestRawBytesMarshalAppends(t *testing.T) {
	dst := []byte("prefix:")
	out, err := RawBytes.Marshal(dst, []byte("suffix"))
	require.NoError(t, err)
	assert.Equal(t, []byte("prefix:suffix"), out)
}
