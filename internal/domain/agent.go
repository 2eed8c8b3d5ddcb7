package domain

import (
	"context"
	"time"
)

// ConversationHistoryConfig controls how much prior conversation an agent sees.
type ConversationHistoryConfig struct {
	Mode         string `json:"mode,omitempty"` // "full", "scoped", "none"
	Limit        int    `json:"limit,omitempty"`
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
	IncludeInternal bool `json:"includeInternal,omitempty"`
}

// SubAgent is a prompt-driven node within a graph. Its primary key is
// graph-scoped: the same agent id may exist in different graphs.
type SubAgent struct {
	ID                  string                     `json:"id"`
	TenantID            string                     `json:"tenantId"`
	ProjectID           string                     `json:"projectId"`
	GraphID             string                     `json:"graphId"`
	Name                string                     `json:"name"`
	Description         string                     `json:"description,omitempty"`
	Prompt              string                     `json:"prompt"`
	ConversationHistory *ConversationHistoryConfig `json:"conversationHistoryConfig,omitempty"`
	Models              *ModelSettings             `json:"models,omitempty"`
	StopWhen            *StopWhen                  `json:"stopWhen,omitempty"`
	CreatedAt           time.Time                  `json:"createdAt"`
	UpdatedAt           time.Time                  `json:"updatedAt"`
}

// ExternalAgent is a remote agent reachable over HTTP that participates in
// relations as a transfer or delegation target.
type ExternalAgent struct {
	ID                    string            `json:"id"`
	TenantID              string            `json:"tenantId"`
	ProjectID             string            `json:"projectId"`
	GraphID               string            `json:"graphId"`
	Name                  string            `json:"name"`
	Description           string            `json:"description,omitempty"`
	BaseURL               string            `json:"baseUrl"`
	Headers               map[string]string `json:"headers,omitempty"`
	CredentialReferenceID string            `json:"credentialReferenceId,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// SubAgentStore persists graph-scoped internal agents.
type SubAgentStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*SubAgent, error)
	Upsert(ctx context.Context, a *SubAgent) error
	Update(ctx context.Context, a *SubAgent) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*SubAgent], error)
	ListAll(ctx context.Context, scopes Scopes) ([]*SubAgent, error)
}

// ExternalAgentStore persists graph-scoped external agents.
type ExternalAgentStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*ExternalAgent, error)
	Upsert(ctx context.Context, a *ExternalAgent) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*ExternalAgent], error)
	ListAll(ctx context.Context, scopes Scopes) ([]*ExternalAgent, error)
}
