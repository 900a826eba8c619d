package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystash-dev/keystash/pkg"
)

func TestNewLineBuffer(t *testing.T) {
	_, err := NewLineBuffer(0)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	b, err := NewLineBuffer(8)
	require.NoError(t, err)
	assert.Equal(t, 8, b.Cap())
	assert.Zero(t, b.Len())
}

func TestLineBufferPush(t *testing.T) {
	b, err := NewLineBuffer(8)
	require.NoError(t, err)

	require.NoError(t, b.Push([]byte("abcd")))
	require.NoError(t, b.Push(nil))
	require.NoError(t, b.Push([]byte("efgh")))
	assert.Equal(t, "abcdefgh", string(b.Bytes()))

	// Exactly full; one more byte overflows and leaves the content intact.
	assert.ErrorIs(t, b.Push([]byte("i")), pkg.ErrLineOverflow)
	assert.Equal(t, "abcdefgh", string(b.Bytes()))
	assert.Equal(t, 8, b.Cap())

	b.Reset()
	assert.Zero(t, b.Len())
	require.NoError(t, b.Push([]byte("xyz")))
	assert.Equal(t, "xyz", string(b.Bytes()))
}

func TestLineBufferOversizedChunk(t *testing.T) {
	b, err := NewLineBuffer(4)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Push([]byte("12345")), pkg.ErrLineOverflow)
	assert.Zero(t, b.Len())
}
