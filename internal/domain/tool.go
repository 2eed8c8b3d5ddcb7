package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolKind discriminates MCP-backed tools from in-process function tools.
type ToolKind string

const (
	ToolKindMCP      ToolKind = "mcp"
	ToolKindFunction ToolKind = "function"
)

// MCPTransport selects how the discovery client reaches an MCP server.
type MCPTransport string

const (
	TransportStreamableHTTP MCPTransport = "streamable_http"
	TransportSSE            MCPTransport = "sse"
)

// ToolHealth is the cached discovery status of an MCP server.
type ToolHealth string

const (
	ToolHealthUnknown   ToolHealth = "unknown"
	ToolHealthHealthy   ToolHealth = "healthy"
	ToolHealthUnhealthy ToolHealth = "unhealthy"
	ToolHealthNeedsAuth ToolHealth = "needs_auth"
)

// MCPToolConfig holds the connection settings for an MCP-backed tool.
type MCPToolConfig struct {
	ServerURL string            `json:"serverUrl"`
	Transport MCPTransport      `json:"transport,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	ActiveTools []string        `json:"activeTools,omitempty"`
}

// ToolCapability is one discovered tool on an MCP server, schema normalized.
type ToolCapability struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Tool is a project-scoped tool definition: an MCP server reference or a
// function tool pointing at a FunctionDef.
type Tool struct {
	ID                    string          `json:"id"`
	TenantID              string          `json:"tenantId"`
	ProjectID             string          `json:"projectId"`
	Name                  string          `json:"name"`
	Kind                  ToolKind        `json:"type"`
	MCP                   *MCPToolConfig  `json:"mcp,omitempty"`
	FunctionID            string          `json:"functionId,omitempty"`
	CredentialReferenceID string          `json:"credentialReferenceId,omitempty"`
	AvailableTools        []ToolCapability `json:"availableTools,omitempty"`
	Health                ToolHealth      `json:"health,omitempty"`
	LastHealthCheck       *time.Time      `json:"lastHealthCheck,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// FunctionDef is the executable body of a function tool: code plus the
// JSON schema of its input and its sandbox dependencies.
type FunctionDef struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	ProjectID    string          `json:"projectId"`
	Description  string          `json:"description,omitempty"`
	Code         string          `json:"executeCode"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// AgentToolRelation binds a tool to an agent with per-binding overrides:
// the active tool subset and extra request headers.
type AgentToolRelation struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId"`
	ProjectID     string            `json:"projectId"`
	GraphID       string            `json:"graphId"`
	AgentID       string            `json:"agentId"`
	ToolID        string            `json:"toolId"`
	SelectedTools []string          `json:"selectedTools,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// ToolStore persists project-scoped tools.
type ToolStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*Tool, error)
	Upsert(ctx context.Context, t *Tool) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*Tool], error)
	ListAll(ctx context.Context, scopes Scopes) ([]*Tool, error)
	// UpdateHealth persists the cached discovery result for an MCP tool.
	UpdateHealth(ctx context.Context, scopes Scopes, id string, health ToolHealth, available []ToolCapability) error
}

// FunctionStore persists function bodies referenced by function tools.
type FunctionStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*FunctionDef, error)
	Upsert(ctx context.Context, f *FunctionDef) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	ListAll(ctx context.Context, scopes Scopes) ([]*FunctionDef, error)
}

// AgentToolStore persists agent↔tool junction rows.
type AgentToolStore interface {
	Create(ctx context.Context, r *AgentToolRelation) error
	ListByAgent(ctx context.Context, scopes Scopes, agentID string) ([]*AgentToolRelation, error)
	DeleteByAgent(ctx context.Context, scopes Scopes, agentID string) error
	DeleteByGraph(ctx context.Context, scopes Scopes) error
}
