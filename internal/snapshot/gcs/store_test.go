package gcs

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "tabs"})
	require.EqualError(t, err, "storage client is required")

	_, err = New(&storage.Client{}, Config{Bucket: " "})
	require.EqualError(t, err, "snapshots.bucket is required")

	store, err := New(&storage.Client{}, Config{Bucket: "tabs"})
	require.NoError(t, err)
	require.Equal(t, "tabs", store.bucket)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "tabs"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.EqualError(t, err, "path is required")
}
