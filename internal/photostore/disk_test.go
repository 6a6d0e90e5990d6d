package photostore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "http://localhost:8080/photos/")
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("jpeg bytes")
	key, url, err := store.Store(ctx, data, "cama.jpg", "op-7")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "op-7/"))
	assert.True(t, strings.HasSuffix(key, "-cama.jpg"))
	assert.Equal(t, "http://localhost:8080/photos/"+key, url)

	got, err := store.Retrieve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDiskStoreMissingKey(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "http://localhost:8080/photos")
	require.NoError(t, err)

	_, err = store.Retrieve(context.Background(), "op-1/nope.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "http://localhost:8080/photos")
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "/abs/path"} {
		_, err := store.Retrieve(context.Background(), key)
		assert.Error(t, err, "key %q should be rejected", key)
	}
}

func TestObjectKeySanitizesFilename(t *testing.T) {
	key := objectKey("..\\..\\evil.jpg", "")
	assert.NotContains(t, key, "..")
	assert.True(t, strings.HasSuffix(key, "-evil.jpg"))

	key = objectKey("", "session-1")
	assert.True(t, strings.HasPrefix(key, "session-1/"))
	assert.True(t, strings.HasSuffix(key, "-photo.jpg"))
}
