package gateway

import (
	"net/http"
	"strconv"
	"time"

	"agentmesh/internal/adapter/mcptool"
	"agentmesh/internal/adapter/signoz"
	"agentmesh/internal/adapter/store"
	"agentmesh/internal/domain"
	"agentmesh/internal/usecase/contextcache"
	"agentmesh/internal/usecase/graph"
)

// Deps bundles everything the REST handlers reach into.
type Deps struct {
	Store     *store.Store
	Graphs    *graph.Service
	Cache     *contextcache.Service
	Signoz    *signoz.Service    // nil disables the conversation route
	Refresher *mcptool.Refresher // nil disables on-demand discovery
	Version   string
	StartTime time.Time
}

// scopedHandler receives an authenticated request with its tenant scope
// already resolved from the token.
type scopedHandler func(w http.ResponseWriter, r *http.Request, scopes domain.Scopes)

func (s *Server) scoped(h scopedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		scopes := domain.Scopes{
			TenantID:  info.TenantID,
			ProjectID: r.PathValue("projectID"),
			GraphID:   r.PathValue("graphID"),
		}
		r = r.WithContext(domain.ContextWithTenantID(r.Context(), info.TenantID))
		h(w, r, scopes)
	}
}

func pageParams(r *http.Request) domain.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return domain.NormalizePagination(page, limit)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("POST /api/projects", s.scoped(s.createProject))
	mux.HandleFunc("GET /api/projects", s.scoped(s.listProjects))
	mux.HandleFunc("GET /api/projects/{projectID}", s.scoped(s.getProject))
	mux.HandleFunc("PUT /api/projects/{projectID}", s.scoped(s.updateProject))
	mux.HandleFunc("DELETE /api/projects/{projectID}", s.scoped(s.deleteProject))

	mux.HandleFunc("POST /api/projects/{projectID}/graphs", s.scoped(s.createGraph))
	mux.HandleFunc("GET /api/projects/{projectID}/graphs", s.scoped(s.listGraphs))
	mux.HandleFunc("GET /api/projects/{projectID}/graphs/{graphID}", s.scoped(s.getGraph))
	mux.HandleFunc("PUT /api/projects/{projectID}/graphs/{graphID}", s.scoped(s.updateGraph))
	mux.HandleFunc("DELETE /api/projects/{projectID}/graphs/{graphID}", s.scoped(s.deleteGraph))
	mux.HandleFunc("GET /api/projects/{projectID}/graphs/{graphID}/agents", s.scoped(s.listAgents))
	mux.HandleFunc("GET /api/projects/{projectID}/graphs/{graphID}/relations", s.scoped(s.listRelations))

	mux.HandleFunc("GET /api/projects/{projectID}/tools", s.scoped(s.listTools))
	mux.HandleFunc("GET /api/projects/{projectID}/tools/{id}", s.scoped(s.getTool))
	mux.HandleFunc("PUT /api/projects/{projectID}/tools/{id}", s.scoped(s.upsertTool))
	mux.HandleFunc("DELETE /api/projects/{projectID}/tools/{id}", s.scoped(s.deleteTool))
	mux.HandleFunc("POST /api/projects/{projectID}/tools/{id}/discover", s.scoped(s.discoverTool))

	mux.HandleFunc("GET /api/projects/{projectID}/functions", s.scoped(s.listFunctions))
	mux.HandleFunc("GET /api/projects/{projectID}/functions/{id}", s.scoped(s.getFunction))
	mux.HandleFunc("PUT /api/projects/{projectID}/functions/{id}", s.scoped(s.upsertFunction))
	mux.HandleFunc("DELETE /api/projects/{projectID}/functions/{id}", s.scoped(s.deleteFunction))

	mux.HandleFunc("GET /api/projects/{projectID}/data-components", s.scoped(s.listDataComponents))
	mux.HandleFunc("GET /api/projects/{projectID}/data-components/{id}", s.scoped(s.getDataComponent))
	mux.HandleFunc("PUT /api/projects/{projectID}/data-components/{id}", s.scoped(s.upsertDataComponent))
	mux.HandleFunc("DELETE /api/projects/{projectID}/data-components/{id}", s.scoped(s.deleteDataComponent))

	mux.HandleFunc("GET /api/projects/{projectID}/artifact-components", s.scoped(s.listArtifactComponents))
	mux.HandleFunc("GET /api/projects/{projectID}/artifact-components/{id}", s.scoped(s.getArtifactComponent))
	mux.HandleFunc("PUT /api/projects/{projectID}/artifact-components/{id}", s.scoped(s.upsertArtifactComponent))
	mux.HandleFunc("DELETE /api/projects/{projectID}/artifact-components/{id}", s.scoped(s.deleteArtifactComponent))

	mux.HandleFunc("GET /api/projects/{projectID}/context-configs", s.scoped(s.listContextConfigs))
	mux.HandleFunc("GET /api/projects/{projectID}/context-configs/{id}", s.scoped(s.getContextConfig))
	mux.HandleFunc("PUT /api/projects/{projectID}/context-configs/{id}", s.scoped(s.upsertContextConfig))
	mux.HandleFunc("DELETE /api/projects/{projectID}/context-configs/{id}", s.scoped(s.deleteContextConfig))
	mux.HandleFunc("POST /api/projects/{projectID}/context-configs/{id}/validate-headers", s.scoped(s.validateHeaders))

	mux.HandleFunc("DELETE /api/projects/{projectID}/cache/conversations/{conversationID}", s.scoped(s.invalidateConversation))
	mux.HandleFunc("DELETE /api/projects/{projectID}/cache/configs/{configID}", s.scoped(s.invalidateConfig))
	mux.HandleFunc("DELETE /api/projects/{projectID}/cache/conversations/{conversationID}/configs/{configID}/keys/{key}", s.scoped(s.invalidateKey))

	mux.HandleFunc("GET /api/projects/{projectID}/credentials", s.scoped(s.listCredentials))
	mux.HandleFunc("GET /api/projects/{projectID}/credentials/{id}", s.scoped(s.getCredential))
	mux.HandleFunc("PUT /api/projects/{projectID}/credentials/{id}", s.scoped(s.upsertCredential))
	mux.HandleFunc("DELETE /api/projects/{projectID}/credentials/{id}", s.scoped(s.deleteCredential))

	mux.HandleFunc("GET /api/projects/{projectID}/contexts/{contextID}/tasks", s.scoped(s.listTasks))
	mux.HandleFunc("GET /api/projects/{projectID}/contexts/{contextID}/artifacts", s.scoped(s.listArtifacts))
	mux.HandleFunc("GET /api/projects/{projectID}/conversations/{conversationID}/messages", s.scoped(s.listMessages))

	mux.HandleFunc("GET /api/signoz/conversations/{conversationID}", s.scoped(s.conversationDetail))
}

// --- projects ---

func (s *Server) createProject(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var p domain.Project
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.TenantID = scopes.TenantID
	if p.ID == "" {
		p.ID = domain.NewID()
	}
	if err := s.deps.Store.Projects.Create(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	s.publish(r, domain.EventProjectCreated, domain.Scopes{TenantID: p.TenantID, ProjectID: p.ID}, p)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Projects.List(r.Context(), scopes.TenantID, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	p, err := s.deps.Store.Projects.Get(r.Context(), scopes.TenantID, scopes.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var p domain.Project
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.TenantID = scopes.TenantID
	p.ID = scopes.ProjectID
	if err := s.deps.Store.Projects.Update(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	s.publish(r, domain.EventProjectUpdated, scopes, p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.Projects.Delete(r.Context(), scopes.TenantID, scopes.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrProjectNotFound)
		return
	}
	s.publish(r, domain.EventProjectDeleted, scopes, nil)
	w.WriteHeader(http.StatusNoContent)
}

// --- graphs ---

func (s *Server) createGraph(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var def domain.FullGraphDefinition
	if err := decodeBody(r, &def); err != nil {
		writeError(w, err)
		return
	}
	stored, err := s.deps.Graphs.CreateFullGraph(r.Context(), scopes, &def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) listGraphs(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Graphs.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	def, err := s.deps.Graphs.GetFullGraphDefinition(r.Context(), scopes, scopes.GraphID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) updateGraph(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var def domain.FullGraphDefinition
	if err := decodeBody(r, &def); err != nil {
		writeError(w, err)
		return
	}
	def.ID = scopes.GraphID
	stored, err := s.deps.Graphs.UpdateFullGraph(r.Context(), scopes, &def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) deleteGraph(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Graphs.DeleteGraph(r.Context(), scopes, scopes.GraphID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrGraphNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.SubAgents.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listRelations(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Relations.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- tools ---

func (s *Server) listTools(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Tools.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	t, err := s.deps.Store.Tools.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) upsertTool(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var t domain.Tool
	if err := decodeBody(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.TenantID = scopes.TenantID
	t.ProjectID = scopes.ProjectID
	t.ID = r.PathValue("id")
	if err := s.deps.Store.Tools.Upsert(r.Context(), &t); err != nil {
		writeError(w, err)
		return
	}
	s.publish(r, domain.EventToolUpserted, scopes, t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTool(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.Tools.Delete(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrToolNotFound)
		return
	}
	s.publish(r, domain.EventToolDeleted, scopes, map[string]string{"id": r.PathValue("id")})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) discoverTool(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	if s.deps.Refresher == nil {
		writeError(w, domain.ErrUnsupported)
		return
	}
	t, err := s.deps.Store.Tools.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	result := s.deps.Refresher.RefreshTool(r.Context(), t)
	writeJSON(w, http.StatusOK, map[string]any{
		"health":         result.Health,
		"availableTools": result.Capabilities,
	})
}

// --- functions ---

func (s *Server) listFunctions(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	fns, err := s.deps.Store.Functions.ListAll(r.Context(), scopes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": fns})
}

func (s *Server) getFunction(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	f, err := s.deps.Store.Functions.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) upsertFunction(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var f domain.FunctionDef
	if err := decodeBody(r, &f); err != nil {
		writeError(w, err)
		return
	}
	f.TenantID = scopes.TenantID
	f.ProjectID = scopes.ProjectID
	f.ID = r.PathValue("id")
	if err := s.deps.Store.Functions.Upsert(r.Context(), &f); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) deleteFunction(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.Functions.Delete(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrFunctionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- components ---

func (s *Server) listDataComponents(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.DataComponents.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getDataComponent(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	c, err := s.deps.Store.DataComponents.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) upsertDataComponent(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var c domain.DataComponent
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.TenantID = scopes.TenantID
	c.ProjectID = scopes.ProjectID
	c.ID = r.PathValue("id")
	if err := s.deps.Store.DataComponents.Upsert(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteDataComponent(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.DataComponents.Delete(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrComponentNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listArtifactComponents(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.ArtifactComponents.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getArtifactComponent(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	c, err := s.deps.Store.ArtifactComponents.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) upsertArtifactComponent(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var c domain.ArtifactComponent
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.TenantID = scopes.TenantID
	c.ProjectID = scopes.ProjectID
	c.ID = r.PathValue("id")
	if err := s.deps.Store.ArtifactComponents.Upsert(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteArtifactComponent(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.ArtifactComponents.Delete(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrComponentNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- context configs ---

func (s *Server) listContextConfigs(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.ContextConfigs.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getContextConfig(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	c, err := s.deps.Store.ContextConfigs.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) upsertContextConfig(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var c domain.ContextConfig
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.TenantID = scopes.TenantID
	c.ProjectID = scopes.ProjectID
	c.ID = r.PathValue("id")
	if len(c.HeadersSchema) > 0 {
		if err := compileSchema(c.HeadersSchema); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.deps.Store.ContextConfigs.Upsert(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	s.publish(r, domain.EventContextConfigUpserted, scopes, c)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteContextConfig(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.ContextConfigs.Delete(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrContextConfigNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- cache invalidation ---

func (s *Server) invalidateConversation(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	n := s.deps.Cache.InvalidateConversation(r.Context(), scopes, r.PathValue("conversationID"))
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) invalidateConfig(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	n := s.deps.Cache.InvalidateConfig(r.Context(), scopes, r.PathValue("configID"))
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) invalidateKey(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	ok := s.deps.Cache.InvalidateKey(r.Context(), scopes,
		r.PathValue("conversationID"), r.PathValue("configID"), r.PathValue("key"))
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": ok})
}

// --- credentials ---

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Credentials.List(r.Context(), scopes, pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	c, err := s.deps.Store.Credentials.Get(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) upsertCredential(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	var c domain.CredentialReference
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.TenantID = scopes.TenantID
	c.ProjectID = scopes.ProjectID
	c.ID = r.PathValue("id")
	if err := s.deps.Store.Credentials.Upsert(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	s.publish(r, domain.EventCredentialUpserted, scopes, map[string]string{"id": c.ID})
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	deleted, err := s.deps.Store.Credentials.Delete(r.Context(), scopes, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.ErrCredentialNotFound)
		return
	}
	s.publish(r, domain.EventCredentialDeleted, scopes, map[string]string{"id": r.PathValue("id")})
	w.WriteHeader(http.StatusNoContent)
}

// --- conversation audit trail ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	tasks, err := s.deps.Store.Tasks.ListByContext(r.Context(), scopes, r.PathValue("contextID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tasks})
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Artifacts.ListByContext(r.Context(), scopes, r.PathValue("contextID"), pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	result, err := s.deps.Store.Messages.ListByConversation(r.Context(), scopes, r.PathValue("conversationID"), pageParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- tracing reads ---

func (s *Server) conversationDetail(w http.ResponseWriter, r *http.Request, scopes domain.Scopes) {
	if s.deps.Signoz == nil {
		writeError(w, domain.ErrUnsupported)
		return
	}
	lookback := signoz.DefaultLookback
	if v := r.URL.Query().Get("lookback"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, domain.NewDomainError("gateway.conversationDetail", domain.ErrInvalidInput, "bad lookback"))
			return
		}
		lookback = d
	}
	detail, err := s.deps.Signoz.ConversationDetail(r.Context(), r.PathValue("conversationID"), lookback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) publish(r *http.Request, t domain.EventType, scopes domain.Scopes, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(r.Context(), t, scopes, payload)
}
