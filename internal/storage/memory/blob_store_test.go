package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectAndGet(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "a/b.html", "text/html", []byte("body"))
	require.NoError(t, err)
	require.Equal(t, "memory://a/b.html", uri)

	data, ok := store.Get("a/b.html")
	require.True(t, ok)
	require.Equal(t, "body", string(data))
	require.Equal(t, 1, store.Len())

	_, ok = store.Get("missing")
	require.False(t, ok)
}
