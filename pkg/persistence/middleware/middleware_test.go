package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/stategraph/pkg/adapters/memory"
	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/persistence/middleware"
	"github.com/aretw0/stategraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func checkpoint(values map[string]any) *domain.Checkpoint {
	return &domain.Checkpoint{
		RunID:   "run-1",
		Graph:   "policy",
		Next:    "summarizer",
		Step:    1,
		Visits:  map[string]int{"retriever": 1},
		Values:  values,
		History: []string{"retriever"},
		Status:  domain.StatusRunning,
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	ports.RunCheckpointStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)

	require.NoError(t, secure.Save(ctx, "run-1", checkpoint(map[string]any{"query": "salary bands"})))

	stored, err := underlying.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.NotContains(t, stored.Values, "query")
	assert.Contains(t, stored.Values, "__encrypted__")
	assert.Empty(t, stored.History)
	// Listing metadata stays readable.
	assert.Equal(t, "policy", stored.Graph)
	assert.Equal(t, "summarizer", stored.Next)

	loaded, err := secure.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "salary bands", loaded.Values["query"])
	assert.Equal(t, []string{"retriever"}, loaded.History)
	assert.Equal(t, 1, loaded.Visits["retriever"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	mwOld, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	oldStore := mwOld(underlying)
	require.NoError(t, oldStore.Save(ctx, "run-1", checkpoint(map[string]any{"data": "old"})))

	mwNew, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	require.NoError(t, err)
	newStore := mwNew(underlying)

	loaded, err := newStore.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.Values["data"])

	loaded.Values["data"] = "new"
	require.NoError(t, newStore.Save(ctx, "run-1", loaded))

	_, err = oldStore.Load(ctx, "run-1")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RejectsPlainCheckpoint(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(ctx, "run-1", checkpoint(map[string]any{"query": "plain"})))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).Load(ctx, "run-1")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

func TestPIIMiddleware_Masking(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)

	cp := checkpoint(map[string]any{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
		"ssn_history": []any{"111-11-1111", "222-22-2222"},
		"ssn_count":   2,
	})
	require.NoError(t, secure.Save(ctx, "run-1", cp))

	// The caller's checkpoint is untouched.
	assert.Equal(t, "secret123", cp.Values["user_password"])

	stored, err := underlying.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", stored.Values["username"])
	assert.Equal(t, middleware.Mask, stored.Values["user_password"])
	details := stored.Values["details"].(map[string]any)
	assert.Equal(t, "123 St", details["address"])
	assert.Equal(t, middleware.Mask, details["ssn_number"])
	assert.Equal(t, []any{middleware.Mask, middleware.Mask}, stored.Values["ssn_history"])
	// Non-string values keep their type so the checkpoint still restores.
	assert.Equal(t, 2, stored.Values["ssn_count"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"secret"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	require.NoError(t, store.Save(ctx, "run-1", checkpoint(map[string]any{"secret": "x", "public": "y"})))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Values["secret"])
	assert.Equal(t, "y", loaded.Values["public"])
}
