package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "outcomes/acme/svc/01.yaml")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "outcomes/acme/svc/02.yaml", []byte("b")))
	require.NoError(t, s.Write(ctx, "outcomes/acme/svc/01.yaml", []byte("a")))
	require.NoError(t, s.Write(ctx, "outcomes/acme/svc/01.yaml", []byte("a2")))

	data, err := s.Read(ctx, "outcomes/acme/svc/01.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a2", string(data))

	ok, err = s.Exists(ctx, "outcomes/acme/svc/01.yaml")
	require.NoError(t, err)
	assert.True(t, ok)

	paths, err := s.List(ctx, "outcomes/acme/svc")
	require.NoError(t, err)
	assert.Equal(t, []string{"outcomes/acme/svc/01.yaml", "outcomes/acme/svc/02.yaml"}, paths)

	// Subdirectories are not listed.
	paths, err = s.List(ctx, "outcomes/acme")
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = s.List(ctx, "outcomes/other")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalStorage_NotFound(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read(context.Background(), "missing.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), "a/b.yaml", []byte("x")))

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.yaml", entries[0].Name())
}

func TestLocalStorage_InvalidPath(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"", "/etc/passwd", "../escape.yaml", "a/../../escape.yaml"} {
		t.Run(p, func(t *testing.T) {
			assert.ErrorIs(t, s.Write(ctx, p, []byte("x")), ErrInvalidPath)
			_, err := s.Read(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}
