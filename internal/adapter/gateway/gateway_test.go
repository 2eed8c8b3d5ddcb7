package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agentmesh/internal/adapter/store"
	"agentmesh/internal/domain"
	"agentmesh/internal/infra/config"
	"agentmesh/internal/usecase/contextcache"
	"agentmesh/internal/usecase/eventbus"
	"agentmesh/internal/usecase/graph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func startTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	logger := testLogger()

	st, err := store.New(t.TempDir()+"/gw.db", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)

	deps := Deps{
		Store:     st,
		Graphs:    graph.NewService(st, bus, logger),
		Cache:     contextcache.NewService(st.ContextCache, bus, logger),
		StartTime: time.Now(),
		Version:   "test",
	}

	cfg := config.ServerConfig{
		Addr: "127.0.0.1:0",
		Auth: config.AuthConfig{
			Type: "static",
			Tokens: []config.TokenConfig{
				{Token: "tok-a", Name: "tenant-a-client", TenantID: "tenant-a"},
				{Token: "tok-b", Name: "tenant-b-client", TenantID: "tenant-b"},
			},
		},
	}

	srv := NewServer(cfg, deps, bus, NewAuthenticator(cfg.Auth), logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		if err := srv.Start(ctx); err != nil {
			_ = err // context cancelled during teardown
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	for srv.BoundAddr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv, st
}

func doRequest(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func apiURL(srv *Server, path string) string {
	return "http://" + srv.BoundAddr() + path
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, body := doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "Demo"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: got %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, apiURL(srv, "/api/projects/proj-1"), "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: got %d: %s", resp.StatusCode, body)
	}
	var p domain.Project
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Name != "Demo" || p.TenantID != "tenant-a" {
		t.Fatalf("unexpected project %+v", p)
	}

	resp, _ = doRequest(t, http.MethodDelete, apiURL(srv, "/api/projects/proj-1"), "tok-a", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodGet, apiURL(srv, "/api/projects/proj-1"), "tok-a", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", resp.StatusCode)
	}
}

func TestTenantScopeFromToken(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, _ := doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: got %d", resp.StatusCode)
	}

	// Tenant B cannot see tenant A's project.
	resp, _ = doRequest(t, http.MethodGet, apiURL(srv, "/api/projects/proj-1"), "tok-b", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-tenant get: got %d, want 404", resp.StatusCode)
	}
}

func TestUnauthorizedRequest(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, body := doRequest(t, http.MethodGet, apiURL(srv, "/api/projects"), "wrong-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if e.Error.Code != domain.CodeAuthInvalid {
		t.Fatalf("got code %s, want %s", e.Error.Code, domain.CodeAuthInvalid)
	}
}

func TestFullGraphOverHTTP(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, _ := doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: got %d", resp.StatusCode)
	}

	def := map[string]any{
		"id":             "graph-1",
		"name":           "Support",
		"defaultAgentId": "router",
		"agents": map[string]any{
			"router": map[string]any{
				"id": "router", "name": "Router", "prompt": "route",
			},
		},
	}
	resp, body := doRequest(t, http.MethodPost, apiURL(srv, "/api/projects/proj-1/graphs"), "tok-a", def)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create graph: got %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, apiURL(srv, "/api/projects/proj-1/graphs/graph-1"), "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get graph: got %d: %s", resp.StatusCode, body)
	}
	var stored domain.FullGraphDefinition
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatalf("unmarshal graph: %v", err)
	}
	if stored.DefaultAgentID != "router" || len(stored.Agents) != 1 {
		t.Fatalf("unexpected graph %+v", stored)
	}
}

func TestGraphValidationErrorMapsTo400(t *testing.T) {
	srv, _ := startTestServer(t)

	doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})

	def := map[string]any{
		"id":             "graph-1",
		"name":           "Broken",
		"defaultAgentId": "ghost",
		"agents": map[string]any{
			"router": map[string]any{"id": "router", "name": "Router"},
		},
	}
	resp, body := doRequest(t, http.MethodPost, apiURL(srv, "/api/projects/proj-1/graphs"), "tok-a", def)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}
	var e apiError
	json.Unmarshal(body, &e)
	if e.Error.Code != domain.CodeGraphInvalid {
		t.Fatalf("got code %s, want %s", e.Error.Code, domain.CodeGraphInvalid)
	}
}

func TestValidateHeadersEndpoint(t *testing.T) {
	srv, _ := startTestServer(t)

	doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})

	cfg := map[string]any{
		"requestContextSchema": map[string]any{
			"type":     "object",
			"required": []string{"user_id"},
			"properties": map[string]any{
				"user_id": map[string]any{"type": "string"},
			},
		},
	}
	resp, body := doRequest(t, http.MethodPut,
		apiURL(srv, "/api/projects/proj-1/context-configs/cc-1"), "tok-a", cfg)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert config: got %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodPost,
		apiURL(srv, "/api/projects/proj-1/context-configs/cc-1/validate-headers"), "tok-a",
		map[string]any{"user_id": "u-1"})
	var ok HeaderValidationResult
	json.Unmarshal(body, &ok)
	if resp.StatusCode != http.StatusOK || !ok.Valid {
		t.Fatalf("valid headers rejected: %d %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodPost,
		apiURL(srv, "/api/projects/proj-1/context-configs/cc-1/validate-headers"), "tok-a",
		map[string]any{"other": 1})
	var bad HeaderValidationResult
	json.Unmarshal(body, &bad)
	if resp.StatusCode != http.StatusOK || bad.Valid {
		t.Fatalf("invalid headers accepted: %d %s", resp.StatusCode, body)
	}
	if bad.Error == "" {
		t.Fatal("expected a validation error message")
	}
}

func TestCacheInvalidationRoutes(t *testing.T) {
	srv, st := startTestServer(t)
	ctx := context.Background()
	scopes := domain.Scopes{TenantID: "tenant-a", ProjectID: "proj-1"}

	for i := 0; i < 3; i++ {
		err := st.ContextCache.Set(ctx, &domain.ContextCacheEntry{
			TenantID:           scopes.TenantID,
			ProjectID:          scopes.ProjectID,
			ConversationID:     "conv-1",
			ContextConfigID:    "cc-1",
			ContextVariableKey: fmt.Sprintf("key-%d", i),
			Value:              json.RawMessage(`"v"`),
			FetchedAt:          time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	resp, body := doRequest(t, http.MethodDelete,
		apiURL(srv, "/api/projects/proj-1/cache/conversations/conv-1"), "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invalidate: got %d", resp.StatusCode)
	}
	var out map[string]int
	json.Unmarshal(body, &out)
	if out["deleted"] != 3 {
		t.Fatalf("deleted %d rows, want 3", out["deleted"])
	}
}

func TestToolUpsertAndList(t *testing.T) {
	srv, _ := startTestServer(t)

	doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})

	tool := map[string]any{
		"name": "GitHub",
		"type": "mcp",
		"mcp":  map[string]any{"serverUrl": "https://mcp.example.com/mcp"},
	}
	resp, body := doRequest(t, http.MethodPut,
		apiURL(srv, "/api/projects/proj-1/tools/tool-1"), "tok-a", tool)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert tool: got %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet,
		apiURL(srv, "/api/projects/proj-1/tools?page=1&limit=5"), "tok-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list tools: got %d", resp.StatusCode)
	}
	var page domain.Paginated[*domain.Tool]
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if page.Total != 1 || page.Data[0].Health != domain.ToolHealthUnknown {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, body := doRequest(t, http.MethodGet, apiURL(srv, "/api/status"), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d", resp.StatusCode)
	}
	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.Service.Name != "agentmesh" || status.Service.Version != "test" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestWebSocketEventFeed(t *testing.T) {
	srv, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=tok-a", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	// Give the server a beat to register the connection.
	time.Sleep(50 * time.Millisecond)

	resp, _ := doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project: got %d", resp.StatusCode)
	}

	var event domain.Event
	if err := wsjson.Read(ctx, ws, &event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != domain.EventProjectCreated || event.TenantID != "tenant-a" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestWebSocketCrossTenantEventsFiltered(t *testing.T) {
	srv, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=tok-b", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	time.Sleep(50 * time.Millisecond)

	// Tenant A activity must not reach tenant B's feed.
	doRequest(t, http.MethodPost, apiURL(srv, "/api/projects"), "tok-a",
		map[string]any{"id": "proj-1", "name": "A"})

	readCtx, readCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer readCancel()
	var event domain.Event
	if err := wsjson.Read(readCtx, ws, &event); err == nil {
		t.Fatalf("tenant-b received tenant-a event %+v", event)
	}
}
