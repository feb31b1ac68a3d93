package fdcache

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_ReuseAvoidsOpen(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	require.NoError(t, c.Close(path, f, true))

	f2, ok, err := c.Open(path)
	require.NoError(t, err)
	require.True(t, ok)
	defer f2.Close()

	pos, err := f2.Seek(0, 1)
	require.NoError(t, err)
	require.Zero(t, pos)
}

func TestCache_RepeatedReuseCycles(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "p")
	require.NoError(t, os.WriteFile(path, []byte("packet one packet two"), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	buf := make([]byte, 6)

	// the packet-by-packet pattern: open, read, close, open, read, ...
	// must keep handing back a usable handle rewound to offset 0
	for cycle := 0; cycle < 3; cycle++ {
		_, err = io.ReadFull(f, buf)
		require.NoError(t, err, "cycle %d", cycle)
		require.Equal(t, "packet", string(buf), "cycle %d", cycle)

		require.NoError(t, c.Close(path, f, true))

		var ok bool
		f, ok, err = c.Open(path)
		require.NoError(t, err, "cycle %d", cycle)
		require.True(t, ok, "cycle %d", cycle)
	}
	require.NoError(t, f.Close())
}

func TestCache_NotCacheableClosesImmediately(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "y")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Close(path, f, false))

	_, ok, err := c.Open(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_InvalidateClosesLiveSlots(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "z")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Close(path, f, true))

	c.Invalidate(path)

	_, ok, err := c.Open(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_RewindFailureInvalidatesOnlyThatSlot(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "w")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Close(path, f, true))

	// sabotage the cached handle so Seek fails, then confirm the slot is
	// gone afterward rather than returned again.
	f.Close()

	_, ok, err := c.Open(path)
	require.Error(t, err)
	require.False(t, ok)

	_, ok, err = c.Open(path)
	require.NoError(t, err)
	require.False(t, ok)
}
