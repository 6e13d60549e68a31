package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s, err := New(&storage.Client{}, Config{Bucket: "artifacts", Prefix: "/tenderwatch/"})
	require.NoError(t, err)
	assert.Equal(t, "tenderwatch/runs/a.json", s.ObjectName("/runs/a.json"))

	s, err = New(&storage.Client{}, Config{Bucket: "artifacts"})
	require.NoError(t, err)
	assert.Equal(t, "runs/a.json", s.ObjectName("runs/a.json"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	s, err := New(&storage.Client{}, Config{Bucket: "artifacts"})
	require.NoError(t, err)
	_, err = s.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
