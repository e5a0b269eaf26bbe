package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_PutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "pages/example.com/abc.html", "text/html", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://pages/example.com/abc.html", uri)

	payload[0] = 'C'
	stored, ok := store.Get("pages/example.com/abc.html")
	require.True(t, ok)
	require.Equal(t, "content", string(stored), "stored copy must be immutable")
}

func TestMemory_PutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	_, err := store.PutObject(context.Background(), "", "text/html", []byte("x"))
	require.Error(t, err)
}
