package graph

import (
	"context"
	"errors"

	"agentmesh/internal/domain"
)

// GetFullGraphDefinition reassembles the nested graph payload from the
// normalized rows. It is a pure read: nothing is written, inheritance was
// already materialized when the graph was stored.
func (s *Service) GetFullGraphDefinition(ctx context.Context, scopes domain.Scopes, graphID string) (*domain.FullGraphDefinition, error) {
	row, err := s.store.Graphs.Get(ctx, scopes, graphID)
	if err != nil {
		return nil, err
	}
	graphScopes := scopes.WithGraph(graphID)

	def := &domain.FullGraphDefinition{
		ID:             row.ID,
		Name:           row.Name,
		Description:    row.Description,
		DefaultAgentID: row.DefaultAgentID,
		Agents:         make(map[string]*domain.GraphAgent),
		Models:         row.Models,
		StatusUpdates:  row.StatusUpdates,
		StopWhen:       row.StopWhen,
		GraphPrompt:    row.GraphPrompt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}

	subs, err := s.store.SubAgents.ListAll(ctx, graphScopes)
	if err != nil {
		return nil, err
	}
	externals, err := s.store.ExternalAgents.ListAll(ctx, graphScopes)
	if err != nil {
		return nil, err
	}
	relations, err := s.store.Relations.ListAll(ctx, graphScopes)
	if err != nil {
		return nil, err
	}

	for _, a := range subs {
		entry := &domain.GraphAgent{
			Kind:                domain.GraphAgentInternal,
			ID:                  a.ID,
			Name:                a.Name,
			Description:         a.Description,
			Prompt:              a.Prompt,
			ConversationHistory: a.ConversationHistory,
			Models:              a.Models,
			StopWhen:            a.StopWhen,
		}

		bindings, err := s.store.AgentTools.ListByAgent(ctx, graphScopes, a.ID)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			entry.Tools = append(entry.Tools, domain.AgentToolBinding{
				ToolID:        b.ToolID,
				SelectedTools: b.SelectedTools,
				Headers:       b.Headers,
			})
		}

		dataRels, err := s.store.DataComponents.ListByAgent(ctx, graphScopes, a.ID)
		if err != nil {
			return nil, err
		}
		for _, rel := range dataRels {
			entry.DataComponents = append(entry.DataComponents, rel.ComponentID)
		}
		artifactRels, err := s.store.ArtifactComponents.ListByAgent(ctx, graphScopes, a.ID)
		if err != nil {
			return nil, err
		}
		for _, rel := range artifactRels {
			entry.ArtifactComponents = append(entry.ArtifactComponents, rel.ComponentID)
		}

		def.Agents[a.ID] = entry
	}

	for _, a := range externals {
		def.Agents[a.ID] = &domain.GraphAgent{
			Kind:                  domain.GraphAgentExternal,
			ID:                    a.ID,
			Name:                  a.Name,
			Description:           a.Description,
			BaseURL:               a.BaseURL,
			Headers:               a.Headers,
			CredentialReferenceID: a.CredentialReferenceID,
		}
	}

	for _, rel := range relations {
		source, ok := def.Agents[rel.SourceAgentID]
		if !ok {
			continue
		}
		target := rel.TargetAgentID
		if rel.IsExternal() {
			target = rel.ExternalAgentID
		}
		switch rel.RelationType {
		case domain.RelationTransfer:
			source.CanTransferTo = append(source.CanTransferTo, target)
		case domain.RelationDelegate:
			source.CanDelegateTo = append(source.CanDelegateTo, target)
		}
	}

	tools, err := s.store.Tools.ListAll(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		def.Tools = make(map[string]*domain.Tool, len(tools))
		for _, t := range tools {
			def.Tools[t.ID] = t
		}
	}

	functions, err := s.store.Functions.ListAll(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if len(functions) > 0 {
		def.Functions = make(map[string]*domain.FunctionDef, len(functions))
		for _, f := range functions {
			def.Functions[f.ID] = f
		}
	}

	dataComponents, err := s.store.DataComponents.ListAll(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if len(dataComponents) > 0 {
		def.DataComponents = make(map[string]*domain.DataComponent, len(dataComponents))
		for _, c := range dataComponents {
			def.DataComponents[c.ID] = c
		}
	}

	artifactComponents, err := s.store.ArtifactComponents.ListAll(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if len(artifactComponents) > 0 {
		def.ArtifactComponents = make(map[string]*domain.ArtifactComponent, len(artifactComponents))
		for _, c := range artifactComponents {
			def.ArtifactComponents[c.ID] = c
		}
	}

	if row.ContextConfigID != "" {
		cfg, err := s.store.ContextConfigs.Get(ctx, scopes, row.ContextConfigID)
		if err == nil {
			def.ContextConfig = cfg
		} else if !errors.Is(err, domain.ErrContextConfigNotFound) {
			return nil, err
		}
	}

	def.Credentials = s.collectCredentials(ctx, scopes, def, externals)
	return def, nil
}

// collectCredentials resolves every credential reference the graph's tools
// and external agents point at. Missing references are skipped: a dangling
// id must not break the read.
func (s *Service) collectCredentials(ctx context.Context, scopes domain.Scopes, def *domain.FullGraphDefinition, externals []*domain.ExternalAgent) map[string]*domain.CredentialReference {
	ids := make(map[string]struct{})
	for _, t := range def.Tools {
		if t.CredentialReferenceID != "" {
			ids[t.CredentialReferenceID] = struct{}{}
		}
	}
	for _, a := range externals {
		if a.CredentialReferenceID != "" {
			ids[a.CredentialReferenceID] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	out := make(map[string]*domain.CredentialReference, len(ids))
	for id := range ids {
		cred, err := s.store.Credentials.Get(ctx, scopes, id)
		if err != nil {
			s.logger.Warn("credential reference unresolved", "credential_id", id, "error", err)
			continue
		}
		out[id] = cred
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
