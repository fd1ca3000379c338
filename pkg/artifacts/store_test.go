package artifacts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/pkg/artifacts"
)

func TestFileStore_StoreGetRoundTrip(t *testing.T) {
	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Store(context.Background(), []byte("hello"))
	require.NoError(t, err)

	got, err := store.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestFileStore_ExistsRejectsInvalidHex(t *testing.T) {
	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)

	exists, err := store.Exists(context.Background(), "sha256:"+string(make([]byte, 64)))
	assert.Error(t, err) // invalid hex
	_ = exists
}

func TestFileStore_PutAtExplicitKey(t *testing.T) {
	store, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := "sha256:" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	require.NoError(t, store.PutAt(context.Background(), key, []byte("module bytes")))

	exists, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("module bytes"), got)
}
