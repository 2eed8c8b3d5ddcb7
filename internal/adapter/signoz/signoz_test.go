package signoz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmesh/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type listRow struct {
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func queryServiceReply(rows []listRow) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"result": []any{map[string]any{
				"queryName": "A",
				"list":      rows,
			}},
		},
	}
}

func spanRowData(spanID, name string, durNano int64, hasError bool, attrs map[string]string) map[string]any {
	return map[string]any{
		"spanID":            spanID,
		"traceID":           "trace-1",
		"name":              name,
		"serviceName":       "agentmesh",
		"durationNano":      durNano,
		"hasError":          hasError,
		"attributes_string": attrs,
	}
}

func newTestService(t *testing.T, rows []listRow) (*Service, *http.Request) {
	t.Helper()
	var captured http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v4/query_range", r.URL.Path)
		json.NewEncoder(w).Encode(queryServiceReply(rows))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.SigNozConfig{
		URL:     "https://signoz.example.com",
		APIURL:  srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, testLogger())
	return NewService(client, testLogger()), &captured
}

func TestConversationDetailAssembly(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := []listRow{
		{Timestamp: base, Data: spanRowData("s1", "agent.router", int64(2*time.Second), false,
			map[string]string{"agent.name": "router"})},
		{Timestamp: base.Add(100 * time.Millisecond), Data: spanRowData("s2", "ai.generateText", int64(time.Second), false,
			map[string]string{
				"gen_ai.request.model":       "gpt-5",
				"gen_ai.usage.input_tokens":  "120",
				"gen_ai.usage.output_tokens": "30",
			})},
		{Timestamp: base.Add(500 * time.Millisecond), Data: spanRowData("s3", "tool.call search", int64(200*time.Millisecond), true,
			map[string]string{"tool.name": "search"})},
		{Timestamp: base.Add(800 * time.Millisecond), Data: spanRowData("s4", "ai.generateText", int64(time.Second), false,
			map[string]string{
				"gen_ai.request.model":       "gpt-5",
				"gen_ai.usage.input_tokens":  "200",
				"gen_ai.usage.output_tokens": "50",
			})},
	}
	svc, _ := newTestService(t, rows)

	detail, err := svc.ConversationDetail(context.Background(), "conv-1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "conv-1", detail.ConversationID)
	assert.Equal(t, 4, detail.SpanCount)
	require.Len(t, detail.Activities, 4)
	assert.Equal(t, ActivityAgent, detail.Activities[0].Type)
	assert.Equal(t, ActivityAIGeneration, detail.Activities[1].Type)
	assert.Equal(t, ActivityToolCall, detail.Activities[2].Type)
	assert.Equal(t, "search", detail.Activities[2].ToolName)

	require.Len(t, detail.Errors, 1)
	assert.Equal(t, "s3", detail.Errors[0].SpanID)
	assert.Contains(t, detail.Errors[0].TraceURL, "/trace/trace-1")

	require.Len(t, detail.TokenUsage, 1)
	usage := detail.TokenUsage[0]
	assert.Equal(t, "gpt-5", usage.Model)
	assert.Equal(t, 2, usage.Calls)
	assert.Equal(t, int64(320), usage.InputTokens)
	assert.Equal(t, int64(80), usage.OutputTokens)
	assert.Equal(t, int64(400), usage.TotalTokens)

	require.NotNil(t, detail.StartedAt)
	require.NotNil(t, detail.EndedAt)
	assert.Equal(t, base, detail.StartedAt.UTC())
	// s1 runs 2s from base and outlives every later span.
	assert.Equal(t, base.Add(2*time.Second), detail.EndedAt.UTC())
	assert.InDelta(t, 2000, detail.DurationMS, 0.1)
}

func TestConversationDetailEmpty(t *testing.T) {
	svc, _ := newTestService(t, nil)

	detail, err := svc.ConversationDetail(context.Background(), "conv-1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 0, detail.SpanCount)
	assert.Empty(t, detail.Activities)
	assert.Nil(t, detail.StartedAt)
	assert.NotEmpty(t, detail.ExplorerURL)
}

func TestQueryCarriesAPIKeyAndFilter(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("SIGNOZ-API-KEY")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(queryServiceReply(nil))
	}))
	defer srv.Close()

	client := NewClient(config.SigNozConfig{
		URL: srv.URL, APIKey: "k1", Timeout: 5 * time.Second,
	}, testLogger())

	_, err := client.ConversationSpans(context.Background(), "conv-9", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "k1", gotKey)
	body, _ := json.Marshal(gotBody)
	assert.Contains(t, string(body), `"conversation.id"`)
	assert.Contains(t, string(body), `"conv-9"`)
}

func TestQueryFailureOpensBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(config.SigNozConfig{
		URL: srv.URL, Timeout: 5 * time.Second,
	}, testLogger())

	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = client.ConversationSpans(context.Background(), "conv-1", time.Hour)
		require.Error(t, lastErr)
	}
	assert.Contains(t, lastErr.Error(), "circuit breaker is open")
}

func TestExplorerURL(t *testing.T) {
	client := NewClient(config.SigNozConfig{
		URL: "https://signoz.example.com", Timeout: time.Second,
	}, testLogger())

	raw := client.ExplorerURL("conv-1", 30*time.Minute)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/traces-explorer", u.Path)
	q := u.Query()
	assert.Equal(t, `"list"`, q.Get("panelTypes"))
	assert.Equal(t, "30m", q.Get("relativeTime"))
	assert.Equal(t, `{"limit":10,"offset":0}`, q.Get("pagination"))

	var composite map[string]any
	require.NoError(t, json.Unmarshal([]byte(q.Get("compositeQuery")), &composite))
	assert.Equal(t, "builder", composite["queryType"])
	assert.True(t, strings.Contains(q.Get("compositeQuery"), "conv-1"))

	var options map[string]any
	require.NoError(t, json.Unmarshal([]byte(q.Get("options")), &options))
	assert.NotEmpty(t, options["selectColumns"])
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		lookback time.Duration
		want     string
	}{
		{0, "30m"},
		{15 * time.Minute, "15m"},
		{2 * time.Hour, "2h"},
		{48 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.lookback), func(t *testing.T) {
			assert.Equal(t, tt.want, relativeTime(tt.lookback))
		})
	}
}

func TestTraceURL(t *testing.T) {
	client := NewClient(config.SigNozConfig{URL: "https://signoz.example.com/", Timeout: time.Second}, testLogger())
	assert.Equal(t, "https://signoz.example.com/trace/abc", client.TraceURL("abc"))
	assert.Empty(t, client.TraceURL(""))
}
