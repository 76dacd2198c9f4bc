package iobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsEmpty(t *testing.T) {
	var b Buffer
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestAppendAndConsume(t *testing.T) {
	var b Buffer
	b.Append([]byte("hello"))
	require.Equal(t, 5, b.Len())
	assert.Equal(t, []byte("hello"), b.Bytes())

	b.Append([]byte(" world"))
	require.Equal(t, 11, b.Len())
	assert.Equal(t, []byte("hello world"), b.Bytes())

	b.Consume(6)
	require.Equal(t, 5, b.Len())
	assert.Equal(t, []byte("world"), b.Bytes())

	b.Consume(5)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestConsumeAllThenReuse(t *testing.T) {
	var b Buffer
	b.Append([]byte("abc"))
	b.Consume(3)
	b.Append([]byte("def"))
	assert.Equal(t, []byte("def"), b.Bytes())
}

func TestConsumeOutOfRangePanics(t *testing.T) {
	var b Buffer
	b.Append([]byte("abc"))
	assert.Panics(t, func() { b.Consume(4) })
	assert.Panics(t, func() { b.Consume(-1) })
}

func TestReset(t *testing.T) {
	var b Buffer
	b.Append([]byte("abc"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestPartialConsumeDoesNotDropTrailingBytes(t *testing.T) {
	var b Buffer
	b.Append([]byte("0123456789"))
	b.Consume(3)
	b.Append([]byte("ABC"))
	assert.Equal(t, []byte("3456789ABC"), b.Bytes())
}
