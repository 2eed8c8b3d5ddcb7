package domain

import (
	"context"
	"encoding/json"
	"time"
)

// DataComponent is a project-scoped structured-output component an agent
// can render into its responses.
type DataComponent struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Props       json.RawMessage `json:"props,omitempty"` // JSON schema of the component props
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ArtifactComponent describes how tool-produced artifacts are summarized
// and rendered for a project.
type ArtifactComponent struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	SummaryProps json.RawMessage `json:"summaryProps,omitempty"`
	FullProps    json.RawMessage `json:"fullProps,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AgentComponentRelation is a junction row binding an agent to a data or
// artifact component.
type AgentComponentRelation struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	ProjectID   string    `json:"projectId"`
	GraphID     string    `json:"graphId"`
	AgentID     string    `json:"agentId"`
	ComponentID string    `json:"componentId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DataComponentStore persists data components and their agent junctions.
type DataComponentStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*DataComponent, error)
	Upsert(ctx context.Context, c *DataComponent) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*DataComponent], error)
	ListAll(ctx context.Context, scopes Scopes) ([]*DataComponent, error)

	Attach(ctx context.Context, r *AgentComponentRelation) error
	ListByAgent(ctx context.Context, scopes Scopes, agentID string) ([]*AgentComponentRelation, error)
	DetachByGraph(ctx context.Context, scopes Scopes) error
}

// ArtifactComponentStore persists artifact components and their agent junctions.
type ArtifactComponentStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*ArtifactComponent, error)
	Upsert(ctx context.Context, c *ArtifactComponent) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*ArtifactComponent], error)
	ListAll(ctx context.Context, scopes Scopes) ([]*ArtifactComponent, error)

	Attach(ctx context.Context, r *AgentComponentRelation) error
	ListByAgent(ctx context.Context, scopes Scopes, agentID string) ([]*AgentComponentRelation, error)
	DetachByGraph(ctx context.Context, scopes Scopes) error
}
