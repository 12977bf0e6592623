package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

func testStorageLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend_StoreAndFetch(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testStorageLogger())
	require.NoError(t, err, "should create file backend")

	ctx := context.Background()
	data := []byte("sealed secret bytes")

	id, err := backend.Store(ctx, data, interfaces.SealedSecretType)
	require.NoError(t, err, "store should succeed")
	assert.Equal(t, interfaces.ComputeID(data), id, "content ID should be the SHA-256 of the data")

	fetched, err := backend.Fetch(ctx, id, interfaces.SealedSecretType)
	require.NoError(t, err, "fetch should succeed")
	assert.Equal(t, data, fetched)
}

func TestFileBackend_FetchMissingContent(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testStorageLogger())
	require.NoError(t, err)

	_, err = backend.Fetch(context.Background(), interfaces.ComputeID([]byte("never stored")), interfaces.SealedSecretType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackend_ContentTypesAreSeparated(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testStorageLogger())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("same bytes, different namespaces")

	id, err := backend.Store(ctx, data, interfaces.ConfigType)
	require.NoError(t, err)

	// Stored as config, so a sealed-secret lookup must miss.
	_, err = backend.Fetch(ctx, id, interfaces.SealedSecretType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	fetched, err := backend.Fetch(ctx, id, interfaces.ConfigType)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestFileBackend_Available(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testStorageLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(context.Background()))
}

func TestStorageBackendFactory_FileURI(t *testing.T) {
	factory := NewStorageBackendFactory(testStorageLogger())

	dir := t.TempDir()
	backend, err := factory.StorageBackendFor(interfaces.StorageBackendLocation("file://" + dir))
	require.NoError(t, err, "file URI should produce a backend")

	ctx := context.Background()
	data := []byte("factory round trip")
	id, err := backend.Store(ctx, data, interfaces.SealedSecretType)
	require.NoError(t, err)

	fetched, err := backend.Fetch(ctx, id, interfaces.SealedSecretType)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestStorageBackendFactory_UnsupportedScheme(t *testing.T) {
	factory := NewStorageBackendFactory(testStorageLogger())

	_, err := factory.StorageBackendFor("gopher://example.com/secrets")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_VaultURIRequiresToken(t *testing.T) {
	factory := NewStorageBackendFactory(testStorageLogger())

	_, err := factory.StorageBackendFor("vault://vault.example.com:8200/secret/enclave")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_MultiBackendSkipsInvalidURIs(t *testing.T) {
	factory := NewStorageBackendFactory(testStorageLogger())

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		"gopher://bad",
		interfaces.StorageBackendLocation("file://" + t.TempDir()),
	})
	require.NoError(t, err, "one valid URI is enough for a multi-backend")
	assert.True(t, multi.Available(context.Background()))
}

func TestStorageBackendFactory_MultiBackendNoValidURIs(t *testing.T) {
	factory := NewStorageBackendFactory(testStorageLogger())

	_, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{"gopher://bad"})
	assert.Error(t, err)
}
