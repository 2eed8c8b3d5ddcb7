package mcptool

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"

	"agentmesh/internal/adapter/credstore"
	"agentmesh/internal/domain"
)

// toolWalker enumerates MCP tools and persists discovery results.
type toolWalker interface {
	ListMCPAcrossTenants(ctx context.Context) ([]*domain.Tool, error)
	UpdateHealth(ctx context.Context, scopes domain.Scopes, id string, health domain.ToolHealth, available []domain.ToolCapability) error
}

// credentialLookup fetches the credential reference a tool points at.
type credentialLookup interface {
	Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.CredentialReference, error)
}

// Refresher periodically re-discovers every MCP tool and persists the
// resulting health and capability list.
type Refresher struct {
	discoverer  *Discoverer
	tools       toolWalker
	credentials credentialLookup
	registry    *credstore.Registry
	bus         domain.EventBus
	logger      *slog.Logger

	cron *cron.Cron
}

// NewRefresher builds a refresher over the given stores. The registry and
// bus may be nil; without them credentials are skipped and no events fire.
func NewRefresher(d *Discoverer, tools toolWalker, credentials credentialLookup, registry *credstore.Registry, bus domain.EventBus, logger *slog.Logger) *Refresher {
	return &Refresher{
		discoverer:  d,
		tools:       tools,
		credentials: credentials,
		registry:    registry,
		bus:         bus,
		logger:      logger,
	}
}

// Start schedules RefreshAll on the given cron spec and begins running.
func (r *Refresher) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := r.RefreshAll(context.Background()); err != nil {
			r.logger.Error("tool health refresh failed", "error", err)
		}
	})
	if err != nil {
		return domain.WrapOp("mcptool.Refresher.Start", err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RefreshAll probes every MCP tool. Per-tool failures are recorded as
// health states, not returned; only the enumeration itself can fail.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	tools, err := r.tools.ListMCPAcrossTenants(ctx)
	if err != nil {
		return domain.WrapOp("mcptool.Refresher.RefreshAll", err)
	}

	for _, tool := range tools {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.refreshOne(ctx, tool)
	}
	return nil
}

// RefreshTool probes a single tool immediately, for the on-demand
// discovery endpoint.
func (r *Refresher) RefreshTool(ctx context.Context, tool *domain.Tool) DiscoveryResult {
	return r.refreshOne(ctx, tool)
}

func (r *Refresher) refreshOne(ctx context.Context, tool *domain.Tool) DiscoveryResult {
	scopes := domain.Scopes{TenantID: tool.TenantID, ProjectID: tool.ProjectID}

	headers := r.authHeaders(ctx, scopes, tool)
	result := r.discoverer.Discover(ctx, tool, headers)

	if result.Err != nil {
		r.logger.Warn("tool discovery failed",
			"tool_id", tool.ID,
			"tenant_id", tool.TenantID,
			"health", string(result.Health),
			"error", result.Err)
	}

	if err := r.tools.UpdateHealth(ctx, scopes, tool.ID, result.Health, result.Capabilities); err != nil {
		r.logger.Error("persist tool health failed", "tool_id", tool.ID, "error", err)
		return result
	}

	if r.bus != nil && result.Health != tool.Health {
		r.bus.Publish(ctx, domain.EventToolHealthChanged, scopes, map[string]any{
			"toolId":    tool.ID,
			"oldHealth": tool.Health,
			"newHealth": result.Health,
		})
	}
	return result
}

// authHeaders resolves the tool's credential reference into an
// Authorization header. Resolution failures degrade to no header so the
// probe still runs and surfaces needs_auth.
func (r *Refresher) authHeaders(ctx context.Context, scopes domain.Scopes, tool *domain.Tool) map[string]string {
	if tool.CredentialReferenceID == "" || r.registry == nil || r.credentials == nil {
		return nil
	}

	ref, err := r.credentials.Get(ctx, scopes, tool.CredentialReferenceID)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			r.logger.Warn("credential reference lookup failed",
				"tool_id", tool.ID, "credential_id", tool.CredentialReferenceID, "error", err)
		}
		return nil
	}

	token, err := r.registry.Resolve(ctx, ref)
	if err != nil {
		r.logger.Warn("credential resolution failed",
			"tool_id", tool.ID, "store_id", ref.CredentialStoreID, "error", err)
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
