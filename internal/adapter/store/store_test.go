package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"agentmesh/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testScopes() domain.Scopes {
	return domain.Scopes{TenantID: "t1", ProjectID: "p1", GraphID: "g1"}
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &domain.Project{
		ID:       "p1",
		TenantID: "t1",
		Name:     "support",
		Models:   &domain.ModelSettings{Base: &domain.ModelConfig{Model: "gpt-4o"}},
		StopWhen: &domain.StopWhen{TransferCountIs: domain.IntPtr(5)},
	}
	if err := s.Projects.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Projects.Get(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "support" {
		t.Errorf("Name = %q, want support", got.Name)
	}
	if got.Models == nil || got.Models.Base.Model != "gpt-4o" {
		t.Errorf("Models not round-tripped: %+v", got.Models)
	}
	if got.StopWhen == nil || *got.StopWhen.TransferCountIs != 5 {
		t.Errorf("StopWhen not round-tripped: %+v", got.StopWhen)
	}

	got.Name = "support-v2"
	if err := s.Projects.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got2, _ := s.Projects.Get(ctx, "t1", "p1")
	if got2.Name != "support-v2" {
		t.Errorf("Name after update = %q", got2.Name)
	}

	deleted, err := s.Projects.Delete(ctx, "t1", "p1")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	deleted, err = s.Projects.Delete(ctx, "t1", "p1")
	if err != nil || deleted {
		t.Errorf("second Delete = %v, want false", deleted)
	}
	if _, err := s.Projects.Get(ctx, "t1", "p1"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("Get after delete = %v, want ErrProjectNotFound", err)
	}
}

func TestProjectDuplicateCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &domain.Project{ID: "p1", TenantID: "t1", Name: "a"}
	if err := s.Projects.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Projects.Create(ctx, &domain.Project{ID: "p1", TenantID: "t1", Name: "b"})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate Create = %v, want ErrDuplicate", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Projects.Create(ctx, &domain.Project{ID: "p1", TenantID: "t1", Name: "mine"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Projects.Get(ctx, "t2", "p1"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("cross-tenant Get = %v, want ErrProjectNotFound", err)
	}
	deleted, err := s.Projects.Delete(ctx, "t2", "p1")
	if err != nil || deleted {
		t.Errorf("cross-tenant Delete = %v, want false", deleted)
	}
	page, err := s.Projects.List(ctx, "t2", domain.NormalizePagination(1, 10))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 0 || len(page.Data) != 0 {
		t.Errorf("cross-tenant List total = %d, want 0", page.Total)
	}
}

func TestGraphUpsertTwice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &domain.AgentGraph{
		ID: "g1", TenantID: "t1", ProjectID: "p1",
		Name: "router", DefaultAgentID: "a1",
	}
	if err := s.Graphs.Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	first, _ := s.Graphs.Get(ctx, testScopes(), "g1")

	g2 := &domain.AgentGraph{
		ID: "g1", TenantID: "t1", ProjectID: "p1",
		Name: "router-v2", DefaultAgentID: "a2",
		GraphPrompt: "route politely",
	}
	if err := s.Graphs.Upsert(ctx, g2); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := s.Graphs.Get(ctx, testScopes(), "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "router-v2" || got.DefaultAgentID != "a2" || got.GraphPrompt != "route politely" {
		t.Errorf("upsert did not replace fields: %+v", got)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on upsert: %v vs %v", got.CreatedAt, first.CreatedAt)
	}

	page, _ := s.Graphs.List(ctx, testScopes(), domain.NormalizePagination(1, 10))
	if page.Total != 1 {
		t.Errorf("Total after two upserts = %d, want 1", page.Total)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		a := &domain.SubAgent{
			ID: domain.NewID(), TenantID: "t1", ProjectID: "p1", GraphID: "g1",
			Name: "agent", Prompt: "do things",
		}
		if err := s.SubAgents.Upsert(ctx, a); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	page, err := s.SubAgents.List(ctx, testScopes(), domain.NormalizePagination(2, 10))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 25 || page.Pages != 3 || len(page.Data) != 10 || page.Page != 2 {
		t.Errorf("page envelope = total %d pages %d len %d page %d",
			page.Total, page.Pages, len(page.Data), page.Page)
	}

	last, _ := s.SubAgents.List(ctx, testScopes(), domain.NormalizePagination(3, 10))
	if len(last.Data) != 5 {
		t.Errorf("last page len = %d, want 5", len(last.Data))
	}
}

func TestSubAgentGraphScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same agent id in two graphs must be two rows.
	for _, graph := range []string{"g1", "g2"} {
		a := &domain.SubAgent{
			ID: "a1", TenantID: "t1", ProjectID: "p1", GraphID: graph,
			Name: "copy-" + graph, Prompt: "x",
		}
		if err := s.SubAgents.Upsert(ctx, a); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	g1, err := s.SubAgents.Get(ctx, testScopes(), "a1")
	if err != nil {
		t.Fatalf("Get g1: %v", err)
	}
	g2, err := s.SubAgents.Get(ctx, testScopes().WithGraph("g2"), "a1")
	if err != nil {
		t.Fatalf("Get g2: %v", err)
	}
	if g1.Name == g2.Name {
		t.Errorf("graph scoping collapsed rows: %q == %q", g1.Name, g2.Name)
	}
}

func TestRelationStoreRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rel := &domain.AgentRelation{
		ID: domain.NewID(), TenantID: "t1", ProjectID: "p1", GraphID: "g1",
		SourceAgentID: "a1", TargetAgentID: "a2", ExternalAgentID: "x1",
		RelationType: domain.RelationTransfer,
	}
	if err := s.Relations.Create(ctx, rel); !errors.Is(err, domain.ErrRelationTargetBoth) {
		t.Errorf("Create with both targets = %v, want ErrRelationTargetBoth", err)
	}
}

func TestContextCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &domain.ContextCacheEntry{
		TenantID: "t1", ProjectID: "p1",
		ConversationID: "c1", ContextConfigID: "cc1", ContextVariableKey: "userInfo",
		Value:       []byte(`{"name":"kai"}`),
		RequestHash: "hash-1",
	}
	if err := s.ContextCache.Set(ctx, e); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.ContextCache.Get(ctx, testScopes(), "c1", "cc1", "userInfo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `{"name":"kai"}` || got.RequestHash != "hash-1" {
		t.Errorf("round trip = %s / %s", got.Value, got.RequestHash)
	}

	// Same key again replaces the row.
	e2 := &domain.ContextCacheEntry{
		TenantID: "t1", ProjectID: "p1",
		ConversationID: "c1", ContextConfigID: "cc1", ContextVariableKey: "userInfo",
		Value:       []byte(`{"name":"rowan"}`),
		RequestHash: "hash-2",
	}
	if err := s.ContextCache.Set(ctx, e2); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got2, _ := s.ContextCache.Get(ctx, testScopes(), "c1", "cc1", "userInfo")
	if got2.RequestHash != "hash-2" {
		t.Errorf("RequestHash = %s, want hash-2", got2.RequestHash)
	}

	n, err := s.ContextCache.DeleteByConversation(ctx, testScopes(), "c1")
	if err != nil || n != 1 {
		t.Errorf("DeleteByConversation = %d, %v", n, err)
	}
	if _, err := s.ContextCache.Get(ctx, testScopes(), "c1", "cc1", "userInfo"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestArtifactUpsertBatchReconciles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(id, payload string) *domain.LedgerArtifact {
		return &domain.LedgerArtifact{
			ID: id, TenantID: "t1", ProjectID: "p1",
			ContextID: "c1", TaskID: "task1", ToolCallID: "call1", Name: "report",
			Parts: []byte(payload),
		}
	}

	if err := s.Artifacts.UpsertBatch(ctx, []*domain.LedgerArtifact{mk("a1", `["v1"]`)}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	// Different row id, same unique key: must reconcile, not fail.
	if err := s.Artifacts.UpsertBatch(ctx, []*domain.LedgerArtifact{mk("a2", `["v2"]`)}); err != nil {
		t.Fatalf("second UpsertBatch: %v", err)
	}

	page, err := s.Artifacts.ListByContext(ctx, testScopes(), "c1", domain.NormalizePagination(1, 10))
	if err != nil {
		t.Fatalf("ListByContext: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Total = %d, want 1", page.Total)
	}
	if string(page.Data[0].Parts) != `["v2"]` {
		t.Errorf("Parts = %s, want [\"v2\"]", page.Data[0].Parts)
	}
}

func TestArtifactUpsertBatchReconcilesWithoutToolCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(id, payload string) *domain.LedgerArtifact {
		return &domain.LedgerArtifact{
			ID: id, TenantID: "t1", ProjectID: "p1",
			ContextID: "c1", TaskID: "task1", Name: "summary",
			Parts: []byte(payload),
		}
	}

	if err := s.Artifacts.UpsertBatch(ctx, []*domain.LedgerArtifact{mk("a1", `["v1"]`)}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	// An empty ToolCallID is still part of the unique key. Re-upserting the
	// same row id must update in place, not trip the primary key.
	if err := s.Artifacts.UpsertBatch(ctx, []*domain.LedgerArtifact{mk("a1", `["v2"]`)}); err != nil {
		t.Fatalf("same-id UpsertBatch: %v", err)
	}
	// A new row id with the same key must reconcile instead of duplicating.
	if err := s.Artifacts.UpsertBatch(ctx, []*domain.LedgerArtifact{mk("a2", `["v3"]`)}); err != nil {
		t.Fatalf("new-id UpsertBatch: %v", err)
	}

	page, err := s.Artifacts.ListByContext(ctx, testScopes(), "c1", domain.NormalizePagination(1, 10))
	if err != nil {
		t.Fatalf("ListByContext: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Total = %d, want 1", page.Total)
	}
	if string(page.Data[0].Parts) != `["v3"]` {
		t.Errorf("Parts = %s, want [\"v3\"]", page.Data[0].Parts)
	}
	if page.Data[0].ToolCallID != "" {
		t.Errorf("ToolCallID = %q, want empty", page.Data[0].ToolCallID)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(r Repos) error {
		if err := r.Projects.Create(ctx, &domain.Project{ID: "p1", TenantID: "t1", Name: "x"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx = %v, want sentinel", err)
	}
	if _, err := s.Projects.Get(ctx, "t1", "p1"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("project survived rollback: %v", err)
	}
}

func TestAgentToolBindingReplacesOnRebind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bind := func(id string, selected []string) error {
		return s.AgentTools.Create(ctx, &domain.AgentToolRelation{
			ID: id, TenantID: "t1", ProjectID: "p1", GraphID: "g1",
			AgentID: "a1", ToolID: "tool1", SelectedTools: selected,
		})
	}
	if err := bind("r1", []string{"search"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := bind("r2", []string{"search", "fetch"}); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	rels, err := s.AgentTools.ListByAgent(ctx, testScopes(), "a1")
	if err != nil {
		t.Fatalf("ListByAgent: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("len = %d, want 1", len(rels))
	}
	if len(rels[0].SelectedTools) != 2 {
		t.Errorf("SelectedTools = %v", rels[0].SelectedTools)
	}
}

func TestToolUpdateHealth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tool := &domain.Tool{
		ID: "tool1", TenantID: "t1", ProjectID: "p1", Name: "docs",
		Kind: domain.ToolKindMCP,
		MCP:  &domain.MCPToolConfig{ServerURL: "http://localhost:9000/mcp"},
	}
	if err := s.Tools.Upsert(ctx, tool); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	caps := []domain.ToolCapability{{Name: "search", Description: "full text search"}}
	if err := s.Tools.UpdateHealth(ctx, testScopes(), "tool1", domain.ToolHealthHealthy, caps); err != nil {
		t.Fatalf("UpdateHealth: %v", err)
	}

	got, _ := s.Tools.Get(ctx, testScopes(), "tool1")
	if got.Health != domain.ToolHealthHealthy {
		t.Errorf("Health = %s", got.Health)
	}
	if len(got.AvailableTools) != 1 || got.AvailableTools[0].Name != "search" {
		t.Errorf("AvailableTools = %+v", got.AvailableTools)
	}
	if got.LastHealthCheck == nil {
		t.Error("LastHealthCheck not set")
	}

	err := s.Tools.UpdateHealth(ctx, testScopes(), "missing", domain.ToolHealthHealthy, nil)
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Errorf("UpdateHealth missing = %v", err)
	}
}
