package contextcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"

	"agentmesh/internal/domain"
)

// Service wraps the cache store with best-effort semantics: every failure
// degrades to a miss on reads and a dropped write on writes. The primary
// request flow must never fail because the cache did.
type Service struct {
	cache  domain.ContextCacheStore
	bus    domain.EventBus
	logger *slog.Logger
}

// NewService creates a context cache service.
func NewService(cache domain.ContextCacheStore, bus domain.EventBus, logger *slog.Logger) *Service {
	return &Service{cache: cache, bus: bus, logger: logger}
}

// RequestHash derives the invalidation hash for a context-variable fetch
// from the request parts that feed it.
func RequestHash(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for (conversation, config, key), or nil on a
// miss. A stored entry whose requestHash differs from requestHash is a miss:
// the request that produced it has changed. Store errors are logged and
// reported as misses.
func (s *Service) Get(ctx context.Context, scopes domain.Scopes, conversationID, contextConfigID, key, requestHash string) json.RawMessage {
	entry, err := s.cache.Get(ctx, scopes, conversationID, contextConfigID, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("context cache read failed, treating as miss",
				"conversation_id", conversationID, "key", key, "error", err)
		}
		return nil
	}
	if requestHash != "" && entry.RequestHash != requestHash {
		return nil
	}
	return entry.Value
}

// Set stores a fetched value. Failures are logged and dropped.
func (s *Service) Set(ctx context.Context, e *domain.ContextCacheEntry) {
	if err := s.cache.Set(ctx, e); err != nil {
		s.logger.Warn("context cache write dropped",
			"conversation_id", e.ConversationID, "key", e.ContextVariableKey, "error", err)
	}
}

// InvalidateConversation drops every cached variable for a conversation and
// returns how many rows went away.
func (s *Service) InvalidateConversation(ctx context.Context, scopes domain.Scopes, conversationID string) int {
	n, err := s.cache.DeleteByConversation(ctx, scopes, conversationID)
	if err != nil {
		s.logger.Warn("context cache invalidation failed",
			"conversation_id", conversationID, "error", err)
		return 0
	}
	if n > 0 {
		s.publishInvalidated(ctx, scopes, map[string]any{
			"conversationId": conversationID, "entries": n,
		})
	}
	return n
}

// InvalidateConfig drops every cached variable produced by a context config,
// across all conversations.
func (s *Service) InvalidateConfig(ctx context.Context, scopes domain.Scopes, contextConfigID string) int {
	n, err := s.cache.DeleteByConfig(ctx, scopes, contextConfigID)
	if err != nil {
		s.logger.Warn("context cache invalidation failed",
			"context_config_id", contextConfigID, "error", err)
		return 0
	}
	if n > 0 {
		s.publishInvalidated(ctx, scopes, map[string]any{
			"contextConfigId": contextConfigID, "entries": n,
		})
	}
	return n
}

// InvalidateKey drops a single cached variable.
func (s *Service) InvalidateKey(ctx context.Context, scopes domain.Scopes, conversationID, contextConfigID, key string) bool {
	deleted, err := s.cache.DeleteByKey(ctx, scopes, conversationID, contextConfigID, key)
	if err != nil {
		s.logger.Warn("context cache invalidation failed",
			"conversation_id", conversationID, "key", key, "error", err)
		return false
	}
	if deleted {
		s.publishInvalidated(ctx, scopes, map[string]any{
			"conversationId": conversationID, "key": key,
		})
	}
	return deleted
}

func (s *Service) publishInvalidated(ctx context.Context, scopes domain.Scopes, payload map[string]any) {
	s.bus.Publish(ctx, domain.EventContextInvalidated, scopes, payload)
}
