package graph

import (
	"context"
	"errors"
	"log/slog"

	"agentmesh/internal/adapter/store"
	"agentmesh/internal/domain"
	"agentmesh/internal/infra/tracer"
)

// Service materializes and reads full graph definitions. Writes run the
// dependency-ordered cascade inside one transaction; reads reconstruct the
// nested payload without side effects.
type Service struct {
	store  *store.Store
	bus    domain.EventBus
	logger *slog.Logger
}

// NewService creates a graph service.
func NewService(s *store.Store, bus domain.EventBus, logger *slog.Logger) *Service {
	return &Service{store: s, bus: bus, logger: logger}
}

// CreateFullGraph validates the payload, applies project inheritance, and
// writes the graph plus every entity and junction it references in one
// transaction. Entity failures abort and roll back; relation failures are
// logged and skipped. Returns the re-read definition.
func (s *Service) CreateFullGraph(ctx context.Context, scopes domain.Scopes, def *domain.FullGraphDefinition) (*domain.FullGraphDefinition, error) {
	ctx, span := tracer.StartSpan(ctx, "graph.create_full_graph",
		tracer.ScopeAttributes(scopes.WithGraph(def.ID))...)
	defer span.End()

	out, err := s.writeFullGraph(ctx, scopes, def, false)
	tracer.Finish(span, err)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, domain.EventGraphCreated,
		scopes.WithGraph(def.ID), map[string]string{"name": def.Name})
	return out, nil
}

// UpdateFullGraph behaves like CreateFullGraph when the graph does not
// exist yet. For an existing graph it additionally cascades graph-level
// model changes to agents that were inheriting the old value, and replaces
// every junction row for the graph.
func (s *Service) UpdateFullGraph(ctx context.Context, scopes domain.Scopes, def *domain.FullGraphDefinition) (*domain.FullGraphDefinition, error) {
	ctx, span := tracer.StartSpan(ctx, "graph.update_full_graph",
		tracer.ScopeAttributes(scopes.WithGraph(def.ID))...)
	defer span.End()

	existing, err := s.store.Graphs.Get(ctx, scopes, def.ID)
	if errors.Is(err, domain.ErrGraphNotFound) {
		out, err := s.writeFullGraph(ctx, scopes, def, false)
		tracer.Finish(span, err)
		if err != nil {
			return nil, err
		}
		s.bus.Publish(ctx, domain.EventGraphCreated,
			scopes.WithGraph(def.ID), map[string]string{"name": def.Name})
		return out, nil
	}
	if err != nil {
		tracer.Finish(span, err)
		return nil, err
	}

	cascadeModelSettings(existing.Models, def)

	out, err := s.writeFullGraph(ctx, scopes, def, true)
	tracer.Finish(span, err)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, domain.EventGraphUpdated,
		scopes.WithGraph(def.ID), map[string]string{"name": def.Name})
	return out, nil
}

// DeleteGraph removes the graph row and everything scoped beneath it.
func (s *Service) DeleteGraph(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	graphScopes := scopes.WithGraph(id)

	var deleted bool
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		if err := r.AgentTools.DeleteByGraph(ctx, graphScopes); err != nil {
			return err
		}
		if err := r.DataComponents.DetachByGraph(ctx, graphScopes); err != nil {
			return err
		}
		if err := r.ArtifactComponents.DetachByGraph(ctx, graphScopes); err != nil {
			return err
		}
		if err := r.Relations.DeleteByGraph(ctx, graphScopes); err != nil {
			return err
		}
		agents, err := r.SubAgents.ListAll(ctx, graphScopes)
		if err != nil {
			return err
		}
		for _, a := range agents {
			if _, err := r.SubAgents.Delete(ctx, graphScopes, a.ID); err != nil {
				return err
			}
		}
		externals, err := r.ExternalAgents.ListAll(ctx, graphScopes)
		if err != nil {
			return err
		}
		for _, a := range externals {
			if _, err := r.ExternalAgents.Delete(ctx, graphScopes, a.ID); err != nil {
				return err
			}
		}
		deleted, err = r.Graphs.Delete(ctx, scopes, id)
		return err
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.bus.Publish(ctx, domain.EventGraphDeleted, graphScopes, nil)
	}
	return deleted, nil
}

// writeFullGraph runs the dependency-ordered cascade. With replace set, the
// graph's junction rows are cleared first and agents missing from the
// payload are removed, so the stored graph converges to the payload.
func (s *Service) writeFullGraph(ctx context.Context, scopes domain.Scopes, def *domain.FullGraphDefinition, replace bool) (*domain.FullGraphDefinition, error) {
	if err := validateStructure(def); err != nil {
		return nil, err
	}

	project, err := s.store.Projects.Get(ctx, scopes.TenantID, scopes.ProjectID)
	if err != nil {
		return nil, err
	}
	applyInheritance(project, def)

	graphScopes := scopes.WithGraph(def.ID)

	err = s.store.WithTx(ctx, func(r store.Repos) error {
		for _, cred := range def.Credentials {
			cred.TenantID = scopes.TenantID
			cred.ProjectID = scopes.ProjectID
			if err := r.Credentials.Upsert(ctx, cred); err != nil {
				return err
			}
		}
		for _, fn := range def.Functions {
			fn.TenantID = scopes.TenantID
			fn.ProjectID = scopes.ProjectID
			if err := r.Functions.Upsert(ctx, fn); err != nil {
				return err
			}
		}
		for _, tool := range def.Tools {
			tool.TenantID = scopes.TenantID
			tool.ProjectID = scopes.ProjectID
			if err := r.Tools.Upsert(ctx, tool); err != nil {
				return err
			}
		}
		if def.ContextConfig != nil {
			def.ContextConfig.TenantID = scopes.TenantID
			def.ContextConfig.ProjectID = scopes.ProjectID
			def.ContextConfig.GraphID = def.ID
			if def.ContextConfig.ID == "" {
				def.ContextConfig.ID = domain.NewID()
			}
			if err := r.ContextConfigs.Upsert(ctx, def.ContextConfig); err != nil {
				return err
			}
		}
		for _, dc := range def.DataComponents {
			dc.TenantID = scopes.TenantID
			dc.ProjectID = scopes.ProjectID
			if err := r.DataComponents.Upsert(ctx, dc); err != nil {
				return err
			}
		}
		for _, ac := range def.ArtifactComponents {
			ac.TenantID = scopes.TenantID
			ac.ProjectID = scopes.ProjectID
			if err := r.ArtifactComponents.Upsert(ctx, ac); err != nil {
				return err
			}
		}

		if replace {
			if err := s.clearJunctions(ctx, r, graphScopes); err != nil {
				return err
			}
			if err := s.pruneAgents(ctx, r, graphScopes, def); err != nil {
				return err
			}
		}

		for id, agent := range def.InternalAgents() {
			sub := subAgentFromEntry(graphScopes, id, agent)
			if err := r.SubAgents.Upsert(ctx, sub); err != nil {
				return err
			}
		}
		for id, agent := range def.ExternalAgents() {
			ext := externalAgentFromEntry(graphScopes, id, agent)
			if err := r.ExternalAgents.Upsert(ctx, ext); err != nil {
				return err
			}
		}

		row := graphRow(scopes, def)
		if err := r.Graphs.Upsert(ctx, row); err != nil {
			return err
		}

		s.writeJunctions(ctx, r, graphScopes, def)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetFullGraphDefinition(ctx, scopes, def.ID)
}

func (s *Service) clearJunctions(ctx context.Context, r store.Repos, scopes domain.Scopes) error {
	if err := r.AgentTools.DeleteByGraph(ctx, scopes); err != nil {
		return err
	}
	if err := r.DataComponents.DetachByGraph(ctx, scopes); err != nil {
		return err
	}
	if err := r.ArtifactComponents.DetachByGraph(ctx, scopes); err != nil {
		return err
	}
	return r.Relations.DeleteByGraph(ctx, scopes)
}

// pruneAgents removes agents that were in the stored graph but are gone
// from the payload, so the read side mirrors what was sent.
func (s *Service) pruneAgents(ctx context.Context, r store.Repos, scopes domain.Scopes, def *domain.FullGraphDefinition) error {
	stored, err := r.SubAgents.ListAll(ctx, scopes)
	if err != nil {
		return err
	}
	for _, a := range stored {
		if _, ok := def.Agents[a.ID]; !ok {
			if _, err := r.SubAgents.Delete(ctx, scopes, a.ID); err != nil {
				return err
			}
		}
	}
	externals, err := r.ExternalAgents.ListAll(ctx, scopes)
	if err != nil {
		return err
	}
	for _, a := range externals {
		if _, ok := def.Agents[a.ID]; !ok {
			if _, err := r.ExternalAgents.Delete(ctx, scopes, a.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeJunctions creates tool bindings, component attachments, and agent
// relations. Failures here never abort the cascade: they are logged with
// enough context to repair by re-sending the graph.
func (s *Service) writeJunctions(ctx context.Context, r store.Repos, scopes domain.Scopes, def *domain.FullGraphDefinition) {
	for agentID, agent := range def.InternalAgents() {
		for _, binding := range agent.Tools {
			rel := &domain.AgentToolRelation{
				ID:            domain.NewID(),
				TenantID:      scopes.TenantID,
				ProjectID:     scopes.ProjectID,
				GraphID:       scopes.GraphID,
				AgentID:       agentID,
				ToolID:        binding.ToolID,
				SelectedTools: binding.SelectedTools,
				Headers:       binding.Headers,
			}
			if err := r.AgentTools.Create(ctx, rel); err != nil {
				s.logger.Warn("agent tool binding skipped",
					"agent_id", agentID, "tool_id", binding.ToolID, "error", err)
			}
		}

		for _, componentID := range agent.DataComponents {
			if err := r.DataComponents.Attach(ctx, componentRel(scopes, agentID, componentID)); err != nil {
				s.logger.Warn("data component attach skipped",
					"agent_id", agentID, "component_id", componentID, "error", err)
			}
		}
		for _, componentID := range agent.ArtifactComponents {
			if err := r.ArtifactComponents.Attach(ctx, componentRel(scopes, agentID, componentID)); err != nil {
				s.logger.Warn("artifact component attach skipped",
					"agent_id", agentID, "component_id", componentID, "error", err)
			}
		}

		s.writeAgentEdges(ctx, r, scopes, def, agentID, agent.CanTransferTo, domain.RelationTransfer)
		s.writeAgentEdges(ctx, r, scopes, def, agentID, agent.CanDelegateTo, domain.RelationDelegate)
	}
}

func (s *Service) writeAgentEdges(ctx context.Context, r store.Repos, scopes domain.Scopes, def *domain.FullGraphDefinition, sourceID string, targets []string, relType domain.RelationType) {
	for _, targetID := range targets {
		var internalID, externalID string
		if target, ok := def.Agents[targetID]; ok && target.Kind == domain.GraphAgentExternal {
			externalID = targetID
		} else {
			internalID = targetID
		}
		rel, err := domain.NewAgentRelation(scopes, sourceID, internalID, externalID, relType)
		if err != nil {
			s.logger.Warn("agent relation skipped",
				"source_id", sourceID, "target_id", targetID, "error", err)
			continue
		}
		if err := r.Relations.Create(ctx, rel); err != nil {
			s.logger.Warn("agent relation skipped",
				"source_id", sourceID, "target_id", targetID, "error", err)
		}
	}
}

func componentRel(scopes domain.Scopes, agentID, componentID string) *domain.AgentComponentRelation {
	return &domain.AgentComponentRelation{
		ID:          domain.NewID(),
		TenantID:    scopes.TenantID,
		ProjectID:   scopes.ProjectID,
		GraphID:     scopes.GraphID,
		AgentID:     agentID,
		ComponentID: componentID,
	}
}

func graphRow(scopes domain.Scopes, def *domain.FullGraphDefinition) *domain.AgentGraph {
	row := &domain.AgentGraph{
		ID:             def.ID,
		TenantID:       scopes.TenantID,
		ProjectID:      scopes.ProjectID,
		Name:           def.Name,
		Description:    def.Description,
		DefaultAgentID: def.DefaultAgentID,
		Models:         def.Models,
		StatusUpdates:  def.StatusUpdates,
		StopWhen:       def.StopWhen,
		GraphPrompt:    def.GraphPrompt,
	}
	if def.ContextConfig != nil {
		row.ContextConfigID = def.ContextConfig.ID
	}
	return row
}

func subAgentFromEntry(scopes domain.Scopes, id string, a *domain.GraphAgent) *domain.SubAgent {
	return &domain.SubAgent{
		ID:                  id,
		TenantID:            scopes.TenantID,
		ProjectID:           scopes.ProjectID,
		GraphID:             scopes.GraphID,
		Name:                a.Name,
		Description:         a.Description,
		Prompt:              a.Prompt,
		ConversationHistory: a.ConversationHistory,
		Models:              a.Models,
		StopWhen:            a.StopWhen,
	}
}

func externalAgentFromEntry(scopes domain.Scopes, id string, a *domain.GraphAgent) *domain.ExternalAgent {
	return &domain.ExternalAgent{
		ID:                    id,
		TenantID:              scopes.TenantID,
		ProjectID:             scopes.ProjectID,
		GraphID:               scopes.GraphID,
		Name:                  a.Name,
		Description:           a.Description,
		BaseURL:               a.BaseURL,
		Headers:               a.Headers,
		CredentialReferenceID: a.CredentialReferenceID,
	}
}
