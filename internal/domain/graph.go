package domain

import (
	"context"
	"time"
)

// StatusUpdateSettings configures progress reporting while a graph runs.
type StatusUpdateSettings struct {
	Enabled          bool     `json:"enabled"`
	NumEvents        int      `json:"numEvents,omitempty"`
	TimeInSeconds    int      `json:"timeInSeconds,omitempty"`
	Prompt           string   `json:"prompt,omitempty"`
	StatusComponents []string `json:"statusComponents,omitempty"`
}

// AgentGraph is a named graph of agents with a designated default agent.
type AgentGraph struct {
	ID              string                `json:"id"`
	TenantID        string                `json:"tenantId"`
	ProjectID       string                `json:"projectId"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	DefaultAgentID  string                `json:"defaultAgentId"`
	ContextConfigID string                `json:"contextConfigId,omitempty"`
	Models          *ModelSettings        `json:"models,omitempty"`
	StatusUpdates   *StatusUpdateSettings `json:"statusUpdates,omitempty"`
	StopWhen        *StopWhen             `json:"stopWhen,omitempty"`
	GraphPrompt     string                `json:"graphPrompt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// GraphStore persists graph metadata rows (not the nested definition).
type GraphStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*AgentGraph, error)
	Create(ctx context.Context, g *AgentGraph) error
	Upsert(ctx context.Context, g *AgentGraph) error
	Update(ctx context.Context, g *AgentGraph) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*AgentGraph], error)
}

// GraphAgentKind discriminates agents inside a FullGraphDefinition.
type GraphAgentKind string

const (
	GraphAgentInternal GraphAgentKind = "internal"
	GraphAgentExternal GraphAgentKind = "external"
)

// GraphAgent is one agent entry in a full graph payload: either an internal
// sub-agent with its relation and tool bindings, or an external agent stub.
type GraphAgent struct {
	Kind GraphAgentKind `json:"type"`

	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Internal agent fields.
	Prompt             string                `json:"prompt,omitempty"`
	ConversationHistory *ConversationHistoryConfig `json:"conversationHistoryConfig,omitempty"`
	Models             *ModelSettings        `json:"models,omitempty"`
	StopWhen           *StopWhen             `json:"stopWhen,omitempty"`
	CanTransferTo      []string              `json:"canTransferTo,omitempty"`
	CanDelegateTo      []string              `json:"canDelegateTo,omitempty"`
	Tools              []AgentToolBinding    `json:"tools,omitempty"`
	DataComponents     []string              `json:"dataComponents,omitempty"`
	ArtifactComponents []string              `json:"artifactComponents,omitempty"`

	// External agent fields.
	BaseURL               string            `json:"baseUrl,omitempty"`
	Headers               map[string]string `json:"headers,omitempty"`
	CredentialReferenceID string            `json:"credentialReferenceId,omitempty"`
}

// AgentToolBinding attaches a tool to an agent with per-relation overrides.
type AgentToolBinding struct {
	ToolID        string            `json:"toolId"`
	SelectedTools []string          `json:"selectedTools,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// FullGraphDefinition is the nested payload the cascade consumes and the
// read side reconstructs: the graph row plus every entity it references,
// keyed by id.
type FullGraphDefinition struct {
	ID              string                          `json:"id"`
	Name            string                          `json:"name"`
	Description     string                          `json:"description,omitempty"`
	DefaultAgentID  string                          `json:"defaultAgentId"`
	Agents          map[string]*GraphAgent          `json:"agents"`
	Tools           map[string]*Tool                `json:"tools,omitempty"`
	Functions       map[string]*FunctionDef         `json:"functions,omitempty"`
	ContextConfig   *ContextConfig                  `json:"contextConfig,omitempty"`
	Credentials     map[string]*CredentialReference `json:"credentialReferences,omitempty"`
	DataComponents  map[string]*DataComponent       `json:"dataComponents,omitempty"`
	ArtifactComponents map[string]*ArtifactComponent `json:"artifactComponents,omitempty"`
	Models          *ModelSettings                  `json:"models,omitempty"`
	StatusUpdates   *StatusUpdateSettings           `json:"statusUpdates,omitempty"`
	StopWhen        *StopWhen                       `json:"stopWhen,omitempty"`
	GraphPrompt     string                          `json:"graphPrompt,omitempty"`
	CreatedAt       time.Time                       `json:"createdAt,omitempty"`
	UpdatedAt       time.Time                       `json:"updatedAt,omitempty"`
}

// InternalAgents returns the internal agent entries keyed by id.
func (d *FullGraphDefinition) InternalAgents() map[string]*GraphAgent {
	out := make(map[string]*GraphAgent)
	for id, a := range d.Agents {
		if a.Kind != GraphAgentExternal {
			out[id] = a
		}
	}
	return out
}

// ExternalAgents returns the external agent entries keyed by id.
func (d *FullGraphDefinition) ExternalAgents() map[string]*GraphAgent {
	out := make(map[string]*GraphAgent)
	for id, a := range d.Agents {
		if a.Kind == GraphAgentExternal {
			out[id] = a
		}
	}
	return out
}
