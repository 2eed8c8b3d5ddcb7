package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmesh/internal/adapter/credstore"
	"agentmesh/internal/domain"
	"agentmesh/internal/usecase/eventbus"
)

type fakeClient struct {
	tools   []mcp.Tool
	listErr error
	closed  bool
	headers map[string]string
}

func (f *fakeClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mcpTool(id string) *domain.Tool {
	return &domain.Tool{
		ID:        id,
		TenantID:  "t1",
		ProjectID: "p1",
		Name:      id,
		Kind:      domain.ToolKindMCP,
		MCP:       &domain.MCPToolConfig{ServerURL: "http://mcp.local/mcp"},
		Health:    domain.ToolHealthUnknown,
	}
}

func discovererWith(client *fakeClient, dialErr error) *Discoverer {
	d := NewDiscoverer(5*time.Second, testLogger())
	d.connect = func(ctx context.Context, cfg *domain.MCPToolConfig, headers map[string]string) (mcpClient, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		client.headers = headers
		return client, nil
	}
	return d
}

func TestDiscoverListsCapabilities(t *testing.T) {
	client := &fakeClient{tools: []mcp.Tool{
		{Name: "search", Description: "web search",
			RawInputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)},
		{Name: "fetch"},
	}}
	d := discovererWith(client, nil)

	res := d.Discover(context.Background(), mcpTool("tool-1"), nil)

	require.NoError(t, res.Err)
	assert.Equal(t, domain.ToolHealthHealthy, res.Health)
	require.Len(t, res.Capabilities, 2)
	assert.Equal(t, "search", res.Capabilities[0].Name)
	assert.Equal(t, "web search", res.Capabilities[0].Description)
	assert.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}}}`,
		string(res.Capabilities[0].InputSchema))
	assert.True(t, client.closed)
}

func TestDiscoverNonMCPTool(t *testing.T) {
	d := discovererWith(&fakeClient{}, nil)
	tool := mcpTool("tool-1")
	tool.Kind = domain.ToolKindFunction
	tool.MCP = nil

	res := d.Discover(context.Background(), tool, nil)

	assert.Error(t, res.Err)
	assert.Equal(t, domain.ToolHealthUnknown, res.Health)
}

func TestDiscoverClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ToolHealth
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), domain.ToolHealthUnhealthy},
		{"http 401", errors.New("request failed with status 401"), domain.ToolHealthNeedsAuth},
		{"unauthorized text", errors.New("Unauthorized"), domain.ToolHealthNeedsAuth},
		{"http 403", errors.New("403 Forbidden"), domain.ToolHealthNeedsAuth},
		{"timeout", context.DeadlineExceeded, domain.ToolHealthUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := discovererWith(nil, tt.err)
			res := d.Discover(context.Background(), mcpTool("tool-1"), nil)
			assert.Equal(t, tt.want, res.Health)
			assert.Error(t, res.Err)
		})
	}
}

func TestDiscoverPassesHeaders(t *testing.T) {
	client := &fakeClient{}
	d := discovererWith(client, nil)
	tool := mcpTool("tool-1")
	tool.MCP.Headers = map[string]string{"X-Base": "1"}

	res := d.Discover(context.Background(), tool, map[string]string{"Authorization": "Bearer tok"})

	require.NoError(t, res.Err)
	assert.Equal(t, "1", client.headers["X-Base"])
	assert.Equal(t, "Bearer tok", client.headers["Authorization"])
}

func TestNormalizeSchema(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want string
	}{
		{
			name: "inputSchema wins",
			doc: map[string]any{
				"inputSchema": map[string]any{"type": "object"},
				"parameters":  map[string]any{"properties": map[string]any{"x": 1}},
			},
			want: `{"type":"object"}`,
		},
		{
			name: "parameters properties wrapped",
			doc: map[string]any{
				"parameters": map[string]any{
					"properties": map[string]any{"q": map[string]any{"type": "string"}},
					"required":   []any{"q"},
				},
			},
			want: `{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`,
		},
		{
			name: "bare parameters",
			doc:  map[string]any{"parameters": map[string]any{"type": "object"}},
			want: `{"type":"object"}`,
		},
		{
			name: "schema fallback",
			doc:  map[string]any{"schema": map[string]any{"type": "object"}},
			want: `{"type":"object"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSchema(tt.doc)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	t.Run("nothing recognized", func(t *testing.T) {
		assert.Nil(t, NormalizeSchema(map[string]any{"other": true}))
	})
}

type fakeWalker struct {
	tools      []*domain.Tool
	listErr    error
	updates    []domain.ToolHealth
	updateErr  error
	updatedIDs []string
}

func (f *fakeWalker) ListMCPAcrossTenants(ctx context.Context) ([]*domain.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeWalker) UpdateHealth(ctx context.Context, scopes domain.Scopes, id string, health domain.ToolHealth, available []domain.ToolCapability) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, health)
	f.updatedIDs = append(f.updatedIDs, id)
	return nil
}

type fakeCredLookup struct {
	ref *domain.CredentialReference
	err error
}

func (f *fakeCredLookup) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.CredentialReference, error) {
	return f.ref, f.err
}

func TestRefreshAllPersistsHealth(t *testing.T) {
	client := &fakeClient{tools: []mcp.Tool{{Name: "a"}}}
	d := discovererWith(client, nil)
	walker := &fakeWalker{tools: []*domain.Tool{mcpTool("tool-1"), mcpTool("tool-2")}}
	bus := eventbus.New(testLogger())
	defer bus.Close()

	received := make(chan domain.Event, 2)
	bus.Subscribe(domain.EventToolHealthChanged, func(ctx context.Context, e domain.Event) {
		received <- e
	})

	r := NewRefresher(d, walker, nil, nil, bus, testLogger())
	require.NoError(t, r.RefreshAll(context.Background()))

	assert.Equal(t, []string{"tool-1", "tool-2"}, walker.updatedIDs)
	assert.Equal(t, []domain.ToolHealth{domain.ToolHealthHealthy, domain.ToolHealthHealthy}, walker.updates)

	for i := 0; i < 2; i++ {
		select {
		case e := <-received:
			assert.Equal(t, "t1", e.TenantID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for health events")
		}
	}
}

func TestRefreshAllNoEventWhenHealthUnchanged(t *testing.T) {
	client := &fakeClient{tools: []mcp.Tool{{Name: "a"}}}
	d := discovererWith(client, nil)
	tool := mcpTool("tool-1")
	tool.Health = domain.ToolHealthHealthy
	walker := &fakeWalker{tools: []*domain.Tool{tool}}
	bus := eventbus.New(testLogger())
	defer bus.Close()

	fired := make(chan struct{}, 1)
	bus.Subscribe(domain.EventToolHealthChanged, func(ctx context.Context, e domain.Event) {
		fired <- struct{}{}
	})

	r := NewRefresher(d, walker, nil, nil, bus, testLogger())
	require.NoError(t, r.RefreshAll(context.Background()))

	select {
	case <-fired:
		t.Fatal("unexpected health change event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRefreshToolRecordsNeedsAuth(t *testing.T) {
	d := discovererWith(nil, errors.New("401 unauthorized"))
	walker := &fakeWalker{}

	r := NewRefresher(d, walker, nil, nil, nil, testLogger())
	res := r.RefreshTool(context.Background(), mcpTool("tool-1"))

	assert.Equal(t, domain.ToolHealthNeedsAuth, res.Health)
	assert.Equal(t, []domain.ToolHealth{domain.ToolHealthNeedsAuth}, walker.updates)
}

func TestRefreshOneInjectsCredentialHeader(t *testing.T) {
	mem := credstore.NewMemoryStore()
	require.NoError(t, mem.Set(context.Background(), "api-key", "secret-token"))
	registry := credstore.NewRegistry(mem)

	client := &fakeClient{tools: []mcp.Tool{{Name: "a"}}}
	d := discovererWith(client, nil)
	walker := &fakeWalker{}
	creds := &fakeCredLookup{ref: &domain.CredentialReference{
		ID:                "cred-1",
		CredentialStoreID: mem.ID(),
		RetrievalParams:   map[string]any{"key": "api-key"},
	}}

	tool := mcpTool("tool-1")
	tool.CredentialReferenceID = "cred-1"

	r := NewRefresher(d, walker, creds, registry, nil, testLogger())
	res := r.RefreshTool(context.Background(), tool)

	require.NoError(t, res.Err)
	assert.Equal(t, "Bearer secret-token", client.headers["Authorization"])
}

func TestRefreshOneDegradesOnCredentialFailure(t *testing.T) {
	client := &fakeClient{tools: []mcp.Tool{{Name: "a"}}}
	d := discovererWith(client, nil)
	walker := &fakeWalker{}
	creds := &fakeCredLookup{err: domain.ErrCredentialNotFound}

	tool := mcpTool("tool-1")
	tool.CredentialReferenceID = "cred-1"

	r := NewRefresher(d, walker, creds, credstore.NewRegistry(), nil, testLogger())
	res := r.RefreshTool(context.Background(), tool)

	require.NoError(t, res.Err)
	assert.Empty(t, client.headers["Authorization"])
}

func TestRefreshAllListFailure(t *testing.T) {
	d := discovererWith(&fakeClient{}, nil)
	walker := &fakeWalker{listErr: errors.New("db closed")}

	r := NewRefresher(d, walker, nil, nil, nil, testLogger())
	assert.Error(t, r.RefreshAll(context.Background()))
}
