package contextcache

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmesh/internal/adapter/store"
	"agentmesh/internal/domain"
	"agentmesh/internal/usecase/eventbus"
)

func newTestCache(t *testing.T) *Service {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	s, err := store.New(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)
	return NewService(s.ContextCache, bus, logger)
}

func cacheScopes() domain.Scopes {
	return domain.Scopes{TenantID: "t1", ProjectID: "p1"}
}

func entry(value, hash string) *domain.ContextCacheEntry {
	return &domain.ContextCacheEntry{
		TenantID: "t1", ProjectID: "p1",
		ConversationID: "c1", ContextConfigID: "cc1", ContextVariableKey: "user",
		Value:       []byte(value),
		RequestHash: hash,
	}
}

func TestGetHitWithMatchingHash(t *testing.T) {
	svc := newTestCache(t)
	ctx := context.Background()

	svc.Set(ctx, entry(`{"id":1}`, "h1"))

	got := svc.Get(ctx, cacheScopes(), "c1", "cc1", "user", "h1")
	assert.JSONEq(t, `{"id":1}`, string(got))
}

func TestGetHashMismatchIsMiss(t *testing.T) {
	svc := newTestCache(t)
	ctx := context.Background()

	svc.Set(ctx, entry(`{"id":1}`, "h1"))

	assert.Nil(t, svc.Get(ctx, cacheScopes(), "c1", "cc1", "user", "h2"))
	// Empty expected hash skips the check.
	assert.NotNil(t, svc.Get(ctx, cacheScopes(), "c1", "cc1", "user", ""))
}

func TestGetMissOnAbsentRow(t *testing.T) {
	svc := newTestCache(t)
	assert.Nil(t, svc.Get(context.Background(), cacheScopes(), "c1", "cc1", "nope", "h1"))
}

func TestInvalidation(t *testing.T) {
	svc := newTestCache(t)
	ctx := context.Background()

	svc.Set(ctx, entry(`1`, "h"))
	e2 := entry(`2`, "h")
	e2.ContextVariableKey = "org"
	svc.Set(ctx, e2)

	assert.True(t, svc.InvalidateKey(ctx, cacheScopes(), "c1", "cc1", "user"))
	assert.False(t, svc.InvalidateKey(ctx, cacheScopes(), "c1", "cc1", "user"))

	assert.Equal(t, 1, svc.InvalidateConversation(ctx, cacheScopes(), "c1"))
	assert.Equal(t, 0, svc.InvalidateConfig(ctx, cacheScopes(), "cc1"))
}

// failingCacheStore simulates a broken backing store.
type failingCacheStore struct{}

func (failingCacheStore) Get(context.Context, domain.Scopes, string, string, string) (*domain.ContextCacheEntry, error) {
	return nil, errors.New("disk on fire")
}
func (failingCacheStore) Set(context.Context, *domain.ContextCacheEntry) error {
	return errors.New("disk on fire")
}
func (failingCacheStore) DeleteByConversation(context.Context, domain.Scopes, string) (int, error) {
	return 0, errors.New("disk on fire")
}
func (failingCacheStore) DeleteByConfig(context.Context, domain.Scopes, string) (int, error) {
	return 0, errors.New("disk on fire")
}
func (failingCacheStore) DeleteByKey(context.Context, domain.Scopes, string, string, string) (bool, error) {
	return false, errors.New("disk on fire")
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	bus := eventbus.New(logger)
	defer bus.Close()
	svc := NewService(failingCacheStore{}, bus, logger)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		assert.Nil(t, svc.Get(ctx, cacheScopes(), "c1", "cc1", "user", "h"))
		svc.Set(ctx, entry(`1`, "h"))
		assert.Equal(t, 0, svc.InvalidateConversation(ctx, cacheScopes(), "c1"))
		assert.Equal(t, 0, svc.InvalidateConfig(ctx, cacheScopes(), "cc1"))
		assert.False(t, svc.InvalidateKey(ctx, cacheScopes(), "c1", "cc1", "user"))
	})
}

func TestRequestHashDeterministic(t *testing.T) {
	a := RequestHash([]byte("url"), []byte(`{"h":1}`))
	b := RequestHash([]byte("url"), []byte(`{"h":1}`))
	c := RequestHash([]byte("url"), []byte(`{"h":2}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
