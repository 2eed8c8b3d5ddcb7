package domain

import (
	"context"
	"encoding/json"
	"time"
)

// TaskStatus tracks one agent invocation through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskWorking   TaskStatus = "working"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one agent invocation within a conversation.
type Task struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	ProjectID  string          `json:"projectId"`
	GraphID    string          `json:"graphId"`
	SubAgentID string          `json:"subAgentId,omitempty"`
	ContextID  string          `json:"contextId"` // conversation id
	Status     TaskStatus      `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// MessageContentKind distinguishes the two supported message content shapes.
type MessageContentKind string

const (
	ContentChat MessageContentKind = "chat" // OpenAI Chat Completions shape
	ContentA2A  MessageContentKind = "a2a"  // Agent-to-Agent parts shape
)

// Message is one entry in the unified chat/A2A conversation log.
type Message struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenantId"`
	ProjectID      string             `json:"projectId"`
	ConversationID string             `json:"conversationId"`
	TaskID         string             `json:"taskId,omitempty"`
	Role           string             `json:"role"`
	ContentKind    MessageContentKind `json:"messageType"`
	Content        json.RawMessage    `json:"content"`
	Visibility     string             `json:"visibility,omitempty"` // "user-facing" | "internal"
	FromAgentID    string             `json:"fromAgentId,omitempty"`
	ToAgentID      string             `json:"toAgentId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// LedgerArtifact is a tool-produced output attached to a task and context.
type LedgerArtifact struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	ProjectID   string          `json:"projectId"`
	ContextID   string          `json:"contextId"`
	TaskID      string          `json:"taskId"`
	ToolCallID  string          `json:"toolCallId,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type,omitempty"`
	Parts       json.RawMessage `json:"parts,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TaskStore persists tasks.
type TaskStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*Task, error)
	Create(ctx context.Context, t *Task) error
	UpdateStatus(ctx context.Context, scopes Scopes, id string, status TaskStatus) error
	ListByContext(ctx context.Context, scopes Scopes, contextID string) ([]*Task, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	Create(ctx context.Context, m *Message) error
	ListByConversation(ctx context.Context, scopes Scopes, conversationID string, page Pagination) (Paginated[*Message], error)
}

// ArtifactStore persists ledger artifacts. UpsertBatch must tolerate
// concurrent writers: rows carry a unique (tenant, project, context, task,
// tool_call, name) key and the implementation reconciles conflicts instead
// of failing the batch.
type ArtifactStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*LedgerArtifact, error)
	UpsertBatch(ctx context.Context, artifacts []*LedgerArtifact) error
	ListByContext(ctx context.Context, scopes Scopes, contextID string, page Pagination) (Paginated[*LedgerArtifact], error)
}
