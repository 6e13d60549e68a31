package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tenderwatch/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive", "runs")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "runs/2024/01/abc.json", "application/json", strings.NewReader(`[]`))
	require.NoError(t, err)
	want := filepath.Join(dir, "runs/2024/01/abc.json")
	assert.Equal(t, "file://"+want, uri)

	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	_, err = store.PutObject(context.Background(), "runs/2024/01/abc.json", "", strings.NewReader(`[{}]`))
	require.NoError(t, err)
	got, err = os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "[{}]", string(got))
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.PutObject(context.Background(), "../escape.json", "", strings.NewReader("x"))
	assert.Error(t, err)
}
