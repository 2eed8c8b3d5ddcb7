package domain

// Scopes identifies the tenancy boundary for a repository call.
// TenantID is always required; the narrower IDs are required per entity
// (graph-scoped entities need GraphID, agent junctions need AgentID).
type Scopes struct {
	TenantID  string `json:"tenantId"`
	ProjectID string `json:"projectId"`
	GraphID   string `json:"graphId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
}

// Valid reports whether the mandatory tenant/project pair is present.
func (s Scopes) Valid() bool {
	return s.TenantID != "" && s.ProjectID != ""
}

// WithGraph returns a copy of the scopes narrowed to a graph.
func (s Scopes) WithGraph(graphID string) Scopes {
	s.GraphID = graphID
	return s
}

// WithAgent returns a copy of the scopes narrowed to an agent.
func (s Scopes) WithAgent(agentID string) Scopes {
	s.AgentID = agentID
	return s
}
