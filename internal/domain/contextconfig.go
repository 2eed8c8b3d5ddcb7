package domain

import (
	"context"
	"encoding/json"
	"time"
)

// FetchTrigger controls when a context variable is re-fetched.
type FetchTrigger string

const (
	TriggerInitialization FetchTrigger = "initialization" // once per conversation
	TriggerInvocation     FetchTrigger = "invocation"     // every request
)

// FetchConfig is the HTTP request spec for one context variable.
type FetchConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Transform string            `json:"transform,omitempty"` // JMESPath-style selector applied to the response
	TimeoutMs int               `json:"timeout,omitempty"`
}

// FetchDefinition describes one named context variable: where to fetch it,
// when, how to validate it, and which credential to attach.
type FetchDefinition struct {
	ID                    string          `json:"id,omitempty"`
	Name                  string          `json:"name,omitempty"`
	Trigger               FetchTrigger    `json:"trigger,omitempty"`
	Fetch                 FetchConfig     `json:"fetchConfig"`
	ResponseSchema        json.RawMessage `json:"responseSchema,omitempty"`
	DefaultValue          json.RawMessage `json:"defaultValue,omitempty"`
	CredentialReferenceID string          `json:"credentialReferenceId,omitempty"`
}

// ContextConfig is the per-graph contract for request headers and the map of
// named context-variable fetch definitions.
type ContextConfig struct {
	ID               string                      `json:"id"`
	TenantID         string                      `json:"tenantId"`
	ProjectID        string                      `json:"projectId"`
	GraphID          string                      `json:"graphId,omitempty"`
	HeadersSchema    json.RawMessage             `json:"requestContextSchema,omitempty"` // JSON schema validated against request headers
	ContextVariables map[string]*FetchDefinition `json:"contextVariables,omitempty"`
	CreatedAt        time.Time                   `json:"createdAt"`
	UpdatedAt        time.Time                   `json:"updatedAt"`
}

// ContextConfigStore persists context configs.
type ContextConfigStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*ContextConfig, error)
	Upsert(ctx context.Context, c *ContextConfig) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*ContextConfig], error)
}

// ContextCacheEntry is one fetched context-variable value scoped to a
// conversation. RequestHash invalidates the entry when the request that
// produced it changes.
type ContextCacheEntry struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenantId"`
	ProjectID          string          `json:"projectId"`
	ConversationID     string          `json:"conversationId"`
	ContextConfigID    string          `json:"contextConfigId"`
	ContextVariableKey string          `json:"contextVariableKey"`
	Value              json.RawMessage `json:"value"`
	RequestHash        string          `json:"requestHash,omitempty"`
	FetchedAt          time.Time       `json:"fetchedAt"`
	FetchSource        string          `json:"fetchSource,omitempty"`
	FetchDurationMs    int             `json:"fetchDurationMs,omitempty"`
}

// ContextCacheStore persists conversation-scoped cache rows. Callers that
// want best-effort semantics should go through the cache usecase, which
// swallows store errors.
type ContextCacheStore interface {
	Get(ctx context.Context, scopes Scopes, conversationID, contextConfigID, key string) (*ContextCacheEntry, error)
	Set(ctx context.Context, e *ContextCacheEntry) error
	DeleteByConversation(ctx context.Context, scopes Scopes, conversationID string) (int, error)
	DeleteByConfig(ctx context.Context, scopes Scopes, contextConfigID string) (int, error)
	DeleteByKey(ctx context.Context, scopes Scopes, conversationID, contextConfigID, key string) (bool, error)
}
