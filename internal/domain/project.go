package domain

import (
	"context"
	"time"
)

// SandboxConfig configures the execution sandbox for function tools
// belonging to a project.
type SandboxConfig struct {
	Provider string   `json:"provider,omitempty"`
	Runtime  string   `json:"runtime,omitempty"`
	Timeout  int      `json:"timeout,omitempty"` // milliseconds
	VCPUs    int      `json:"vcpus,omitempty"`
	Packages []string `json:"packages,omitempty"`
}

// Project is the top-level tenant container. It carries the default model
// settings and execution limits that graphs and agents inherit.
type Project struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Models        *ModelSettings `json:"models,omitempty"`
	StopWhen      *StopWhen      `json:"stopWhen,omitempty"`
	SandboxConfig *SandboxConfig `json:"sandboxConfig,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// ProjectStore persists projects per tenant.
type ProjectStore interface {
	Get(ctx context.Context, tenantID, id string) (*Project, error)
	Create(ctx context.Context, p *Project) error
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, tenantID, id string) (bool, error)
	List(ctx context.Context, tenantID string, page Pagination) (Paginated[*Project], error)
}
