package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := New()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "tabs/rec-1.txt", "text/plain", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://tabs/rec-1.txt", uri)

	payload[0] = 'C'
	got, ok := store.Object("tabs/rec-1.txt")
	require.True(t, ok)
	require.Equal(t, "content", string(got))

	_, ok = store.Object("missing")
	require.False(t, ok)
}
