package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStorage_PutAndGet(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	n, err := fs.Put(ctx, "assets/images/optimized/a/logo-small.webp", strings.NewReader("webp-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	ok, err := fs.Exists(ctx, "assets/images/optimized/a/logo-small.webp")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := fs.GetReader(ctx, "assets/images/optimized/a/logo-small.webp")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "webp-bytes", string(data))

	meta, err := fs.GetMetadata(ctx, "assets/images/optimized/a/logo-small.webp")
	require.NoError(t, err)
	assert.Equal(t, int64(10), meta.Size)
}

func TestFilesystemStorage_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	fs, err := NewFilesystemStorage(base)
	require.NoError(t, err)

	_, err = fs.Put(ctx, "x/file.jpg", strings.NewReader("first version"))
	require.NoError(t, err)
	_, err = fs.Put(ctx, "x/file.jpg", strings.NewReader("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(base, "x", "file.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := fs.ReadDir("x")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFilesystemStorage_Missing(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	ok, err := fs.Exists(ctx, "nope.png")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.GetReader(ctx, "nope.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fs.ReadDir("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = fs.Walk("nope", func(string, os.DirEntry, error) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Put(ctx, "../escape.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = fs.Exists(ctx, "a/../../escape.txt")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFilesystemStorage_Walk(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"root/a.jpg", "root/sub/b.png", "root/skip/c.gif"} {
		_, err := fs.Put(ctx, key, strings.NewReader("x"))
		require.NoError(t, err)
	}

	var files []string
	err = fs.Walk("root", func(key string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() && d.Name() == "skip" {
			return SkipDir
		}
		if !d.IsDir() {
			files = append(files, key)
		}
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root/a.jpg", "root/sub/b.png"}, files)
}

func TestFilesystemStorage_WalkPassesReadErrors(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	ctx := context.Background()
	base := t.TempDir()
	fs, err := NewFilesystemStorage(base)
	require.NoError(t, err)

	for _, key := range []string{"root/a.jpg", "root/locked/b.png", "root/open/c.gif"} {
		_, err := fs.Put(ctx, key, strings.NewReader("x"))
		require.NoError(t, err)
	}
	locked := filepath.Join(base, "root", "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	var files, failed []string
	err = fs.Walk("root", func(key string, d os.DirEntry, err error) error {
		if err != nil {
			failed = append(failed, key)
			return SkipDir
		}
		if !d.IsDir() {
			files = append(files, key)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root/locked"}, failed)
	assert.ElementsMatch(t, []string{"root/a.jpg", "root/open/c.gif"}, files)
}
