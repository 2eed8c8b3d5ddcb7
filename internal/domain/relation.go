package domain

import (
	"context"
	"time"
)

// RelationType distinguishes the two edge kinds between agents.
// Transfer hands off full conversation control; delegate issues a sub-task
// while the source retains control.
type RelationType string

const (
	RelationTransfer RelationType = "transfer"
	RelationDelegate RelationType = "delegate"
)

// Valid reports whether t is a known relation type.
func (t RelationType) Valid() bool {
	return t == RelationTransfer || t == RelationDelegate
}

// AgentRelation is a directed edge from a source agent to exactly one of an
// internal agent or an external agent. The exactly-one-of rule is enforced
// by NewAgentRelation and Validate; handlers must not persist a relation
// that fails Validate.
type AgentRelation struct {
	ID              string       `json:"id"`
	TenantID        string       `json:"tenantId"`
	ProjectID       string       `json:"projectId"`
	GraphID         string       `json:"graphId"`
	SourceAgentID   string       `json:"sourceAgentId"`
	TargetAgentID   string       `json:"targetAgentId,omitempty"`
	ExternalAgentID string       `json:"externalAgentId,omitempty"`
	RelationType    RelationType `json:"relationType"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// NewAgentRelation constructs a validated relation. Exactly one of
// targetAgentID and externalAgentID must be non-empty.
func NewAgentRelation(scopes Scopes, sourceAgentID, targetAgentID, externalAgentID string, relType RelationType) (*AgentRelation, error) {
	r := &AgentRelation{
		ID:              NewID(),
		TenantID:        scopes.TenantID,
		ProjectID:       scopes.ProjectID,
		GraphID:         scopes.GraphID,
		SourceAgentID:   sourceAgentID,
		TargetAgentID:   targetAgentID,
		ExternalAgentID: externalAgentID,
		RelationType:    relType,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the exactly-one-of target invariant and the relation type.
func (r *AgentRelation) Validate() error {
	if r.TargetAgentID != "" && r.ExternalAgentID != "" {
		return ErrRelationTargetBoth
	}
	if r.TargetAgentID == "" && r.ExternalAgentID == "" {
		return ErrRelationTargetNone
	}
	if !r.RelationType.Valid() {
		return NewSubSystemError("graph", "Relation.Validate", ErrInvalidInput,
			"relationType must be transfer or delegate")
	}
	if r.SourceAgentID == "" {
		return NewSubSystemError("graph", "Relation.Validate", ErrInvalidInput,
			"sourceAgentId required")
	}
	return nil
}

// IsExternal reports whether the edge targets an external agent.
func (r *AgentRelation) IsExternal() bool { return r.ExternalAgentID != "" }

// AgentRelationStore persists directed agent edges.
type AgentRelationStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*AgentRelation, error)
	Create(ctx context.Context, r *AgentRelation) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*AgentRelation], error)
	ListBySource(ctx context.Context, scopes Scopes, sourceAgentID string) ([]*AgentRelation, error)
	ListAll(ctx context.Context, scopes Scopes) ([]*AgentRelation, error)
	DeleteByGraph(ctx context.Context, scopes Scopes) error
}
