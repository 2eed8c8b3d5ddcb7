package signoz

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Activity classification by span name.
const (
	ActivityAIGeneration = "ai_generation"
	ActivityToolCall     = "tool_call"
	ActivityAgent        = "agent_generation"
	ActivityContextFetch = "context_fetch"
	ActivityOther        = "other"
)

// Activity is one timeline item in the conversation view.
type Activity struct {
	SpanID       string    `json:"spanId"`
	TraceID      string    `json:"traceId"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	AgentName    string    `json:"agentName,omitempty"`
	Model        string    `json:"model,omitempty"`
	ToolName     string    `json:"toolName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMS   float64   `json:"durationMs"`
	InputTokens  int64     `json:"inputTokens,omitempty"`
	OutputTokens int64     `json:"outputTokens,omitempty"`
	HasError     bool      `json:"hasError,omitempty"`
	TraceURL     string    `json:"traceUrl,omitempty"`
}

// ErrorDetail is one failed span with enough context to drill down.
type ErrorDetail struct {
	SpanID    string    `json:"spanId"`
	TraceID   string    `json:"traceId"`
	SpanName  string    `json:"spanName"`
	AgentName string    `json:"agentName,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceURL  string    `json:"traceUrl,omitempty"`
}

// ModelUsage aggregates token counts for one model across the conversation.
type ModelUsage struct {
	Model        string `json:"model"`
	Calls        int    `json:"calls"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	TotalTokens  int64  `json:"totalTokens"`
}

// ConversationDetail is the read model behind the conversation endpoint.
type ConversationDetail struct {
	ConversationID string        `json:"conversationId"`
	Activities     []Activity    `json:"activities"`
	Errors         []ErrorDetail `json:"errors"`
	TokenUsage     []ModelUsage  `json:"tokenUsage"`
	StartedAt      *time.Time    `json:"startedAt,omitempty"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
	DurationMS     float64       `json:"durationMs"`
	SpanCount      int           `json:"spanCount"`
	ExplorerURL    string        `json:"explorerUrl,omitempty"`
}

// DefaultLookback bounds span queries when the caller gives no window.
const DefaultLookback = 24 * time.Hour

// Service assembles conversation read models from raw spans.
type Service struct {
	client *Client
	logger *slog.Logger
}

func NewService(client *Client, logger *slog.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// ConversationDetail fetches the conversation's spans and folds them into
// the timeline, error, and token-usage views.
func (s *Service) ConversationDetail(ctx context.Context, conversationID string, lookback time.Duration) (*ConversationDetail, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	spans, err := s.client.ConversationSpans(ctx, conversationID, lookback)
	if err != nil {
		return nil, err
	}

	detail := &ConversationDetail{
		ConversationID: conversationID,
		Activities:     []Activity{},
		Errors:         []ErrorDetail{},
		TokenUsage:     []ModelUsage{},
		SpanCount:      len(spans),
		ExplorerURL:    s.client.ExplorerURL(conversationID, lookback),
	}
	if len(spans) == 0 {
		return detail, nil
	}

	usage := map[string]*ModelUsage{}
	for _, span := range spans {
		act := activityFromSpan(span)
		act.TraceURL = s.client.TraceURL(span.TraceID)
		detail.Activities = append(detail.Activities, act)

		if span.HasError {
			detail.Errors = append(detail.Errors, ErrorDetail{
				SpanID:    span.SpanID,
				TraceID:   span.TraceID,
				SpanName:  span.Name,
				AgentName: span.Attributes["agent.name"],
				Message:   span.StatusMsg,
				Timestamp: span.Timestamp,
				TraceURL:  s.client.TraceURL(span.TraceID),
			})
		}

		if act.Model != "" && (act.InputTokens > 0 || act.OutputTokens > 0) {
			u, ok := usage[act.Model]
			if !ok {
				u = &ModelUsage{Model: act.Model}
				usage[act.Model] = u
			}
			u.Calls++
			u.InputTokens += act.InputTokens
			u.OutputTokens += act.OutputTokens
			u.TotalTokens += act.InputTokens + act.OutputTokens
		}
	}

	sort.Slice(detail.Activities, func(i, j int) bool {
		return detail.Activities[i].Timestamp.Before(detail.Activities[j].Timestamp)
	})

	models := make([]string, 0, len(usage))
	for m := range usage {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		detail.TokenUsage = append(detail.TokenUsage, *usage[m])
	}

	first := detail.Activities[0].Timestamp
	var lastEnd time.Time
	for _, span := range spans {
		end := span.Timestamp.Add(time.Duration(span.DurationNano))
		if end.After(lastEnd) {
			lastEnd = end
		}
	}
	detail.StartedAt = &first
	detail.EndedAt = &lastEnd
	detail.DurationMS = float64(lastEnd.Sub(first)) / float64(time.Millisecond)
	return detail, nil
}

// activityFromSpan classifies a span and lifts the attributes the
// timeline renders.
func activityFromSpan(span Span) Activity {
	act := Activity{
		SpanID:     span.SpanID,
		TraceID:    span.TraceID,
		Type:       classifySpan(span.Name),
		Name:       span.Name,
		AgentName:  span.Attributes["agent.name"],
		Timestamp:  span.Timestamp,
		DurationMS: float64(span.DurationNano) / float64(time.Millisecond),
		HasError:   span.HasError,
	}
	if m := span.Attributes["gen_ai.request.model"]; m != "" {
		act.Model = m
	} else if m := span.Attributes["ai.model.id"]; m != "" {
		act.Model = m
	}
	act.ToolName = span.Attributes["tool.name"]
	act.InputTokens = attrInt(span.Attributes, "gen_ai.usage.input_tokens")
	act.OutputTokens = attrInt(span.Attributes, "gen_ai.usage.output_tokens")
	return act
}

func classifySpan(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "ai.generate") || strings.HasPrefix(n, "gen_ai") ||
		strings.Contains(n, "generatetext") || strings.Contains(n, "streamtext"):
		return ActivityAIGeneration
	case strings.HasPrefix(n, "tool.") || strings.Contains(n, "tool_call") ||
		strings.Contains(n, "calltool"):
		return ActivityToolCall
	case strings.HasPrefix(n, "agent."):
		return ActivityAgent
	case strings.HasPrefix(n, "context.") || strings.Contains(n, "context_fetch"):
		return ActivityContextFetch
	default:
		return ActivityOther
	}
}

func attrInt(attrs map[string]string, key string) int64 {
	v, ok := attrs[key]
	if !ok {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	return 0
}
