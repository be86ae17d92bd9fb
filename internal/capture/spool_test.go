package capture

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolBufferInMemory(t *testing.T) {
	b := NewSpoolBuffer(16, t.TempDir())
	defer b.Close()

	_, err := b.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = b.Write([]byte("world"))
	require.NoError(t, err)

	assert.False(t, b.Spilled())
	assert.Equal(t, "hello world", b.String())
	assert.Equal(t, int64(11), b.Len())
}

func TestSpoolBufferSpillsPastThreshold(t *testing.T) {
	dir := t.TempDir()
	b := NewSpoolBuffer(8, dir)

	_, err := b.Write([]byte("12345"))
	require.NoError(t, err)
	_, err = b.Write([]byte("67890"))
	require.NoError(t, err)
	require.True(t, b.Spilled())

	_, err = b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "1234567890abc", b.String())

	// Reading must not disturb later appends.
	_, err = b.Write([]byte("!"))
	require.NoError(t, err)
	assert.Equal(t, "1234567890abc!", b.String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, b.Close())
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spill file must be removed on close")
}

func TestSpoolBufferDefaultThreshold(t *testing.T) {
	b := NewSpoolBuffer(0, t.TempDir())
	defer b.Close()

	_, err := b.Write([]byte(strings.Repeat("x", DefaultMaxMemory)))
	require.NoError(t, err)
	assert.False(t, b.Spilled())

	_, err = b.Write([]byte("y"))
	require.NoError(t, err)
	assert.True(t, b.Spilled())
	assert.Equal(t, int64(DefaultMaxMemory+1), b.Len())
}

func TestSpoolBufferWriteAfterClose(t *testing.T) {
	b := NewSpoolBuffer(4, t.TempDir())
	require.NoError(t, b.Close())
	_, err := b.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
