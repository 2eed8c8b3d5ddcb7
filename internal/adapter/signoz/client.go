package signoz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"agentmesh/internal/domain"
	"agentmesh/internal/infra/config"
)

// Span is one trace span as returned by the query service, flattened to
// the fields the conversation view needs.
type Span struct {
	SpanID       string            `json:"spanId"`
	TraceID      string            `json:"traceId"`
	Name         string            `json:"name"`
	ServiceName  string            `json:"serviceName"`
	Timestamp    time.Time         `json:"timestamp"`
	DurationNano int64             `json:"durationNano"`
	HasError     bool              `json:"hasError"`
	StatusMsg    string            `json:"statusMessage,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Client queries the SigNoz query service for trace spans. Calls run
// behind a circuit breaker so a down tracing backend degrades fast.
type Client struct {
	baseURL string
	apiURL  string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]Span]
	logger  *slog.Logger
}

// NewClient creates a span-query client from config. APIURL falls back
// to the UI base URL when unset.
func NewClient(cfg config.SigNozConfig, logger *slog.Logger) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = cfg.URL
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiURL:  strings.TrimRight(apiURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]Span](gobreaker.Settings{
		Name:        "signoz",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// queryRangeRequest mirrors the query-service builder query envelope.
type queryRangeRequest struct {
	Start          int64          `json:"start"`
	End            int64          `json:"end"`
	Step           int64          `json:"step"`
	CompositeQuery compositeQuery `json:"compositeQuery"`
}

type compositeQuery struct {
	QueryType string       `json:"queryType"`
	PanelType string       `json:"panelType"`
	Builder   builderQuery `json:"builderQueries,omitempty"`
}

type builderQuery map[string]queryData

type queryData struct {
	DataSource        string      `json:"dataSource"`
	QueryName         string      `json:"queryName"`
	AggregateOperator string      `json:"aggregateOperator"`
	Expression        string      `json:"expression"`
	Disabled          bool        `json:"disabled"`
	Filters           filterSet   `json:"filters"`
	OrderBy           []orderBy   `json:"orderBy,omitempty"`
	SelectColumns     []attribute `json:"selectColumns,omitempty"`
	Limit             int         `json:"limit,omitempty"`
	Offset            int         `json:"offset,omitempty"`
	PageSize          int         `json:"pageSize,omitempty"`
}

type filterSet struct {
	Op    string       `json:"op"`
	Items []filterItem `json:"items"`
}

type filterItem struct {
	Key   attribute `json:"key"`
	Op    string    `json:"op"`
	Value any       `json:"value"`
}

type attribute struct {
	Key      string `json:"key"`
	DataType string `json:"dataType,omitempty"`
	Type     string `json:"type,omitempty"`
	IsColumn bool   `json:"isColumn,omitempty"`
}

type orderBy struct {
	ColumnName string `json:"columnName"`
	Order      string `json:"order"`
}

// queryRangeResponse is the list-panel slice of the query-service reply.
type queryRangeResponse struct {
	Data struct {
		Result []struct {
			QueryName string `json:"queryName"`
			List      []struct {
				Timestamp time.Time       `json:"timestamp"`
				Data      json.RawMessage `json:"data"`
			} `json:"list"`
		} `json:"result"`
	} `json:"data"`
}

// spanRow is one flattened list row. Attribute maps arrive keyed by type.
type spanRow struct {
	SpanID           string            `json:"spanID"`
	TraceID          string            `json:"traceID"`
	Name             string            `json:"name"`
	ServiceName      string            `json:"serviceName"`
	DurationNano     int64             `json:"durationNano"`
	HasError         bool              `json:"hasError"`
	StatusMessage    string            `json:"statusMessage"`
	AttributesString map[string]string `json:"attributes_string"`
	AttributesNum    map[string]any    `json:"attributes_number"`
}

const spanQueryLimit = 500

// ConversationSpans returns every span tagged with the conversation id
// inside the lookback window, oldest first.
func (c *Client) ConversationSpans(ctx context.Context, conversationID string, lookback time.Duration) ([]Span, error) {
	return c.breaker.Execute(func() ([]Span, error) {
		return c.querySpans(ctx, conversationID, lookback)
	})
}

func (c *Client) querySpans(ctx context.Context, conversationID string, lookback time.Duration) ([]Span, error) {
	now := time.Now()
	req := queryRangeRequest{
		Start: now.Add(-lookback).UnixMilli(),
		End:   now.UnixMilli(),
		Step:  60,
		CompositeQuery: compositeQuery{
			QueryType: "builder",
			PanelType: "list",
			Builder: builderQuery{
				"A": {
					DataSource:        "traces",
					QueryName:         "A",
					AggregateOperator: "noop",
					Expression:        "A",
					Filters: filterSet{
						Op: "AND",
						Items: []filterItem{{
							Key:   attribute{Key: "conversation.id", DataType: "string", Type: "tag"},
							Op:    "=",
							Value: conversationID,
						}},
					},
					OrderBy:  []orderBy{{ColumnName: "timestamp", Order: "asc"}},
					PageSize: spanQueryLimit,
				},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.WrapOp("signoz.querySpans", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/api/v4/query_range", bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapOp("signoz.querySpans", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("SIGNOZ-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, domain.WrapOp("signoz.querySpans", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewSubSystemError("signoz", "signoz.querySpans", domain.ErrProviderError,
			fmt.Sprintf("query_range returned %d: %s", resp.StatusCode, string(data)))
	}

	var parsed queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.WrapOp("signoz.querySpans", err)
	}

	var spans []Span
	for _, result := range parsed.Data.Result {
		for _, item := range result.List {
			var row spanRow
			if err := json.Unmarshal(item.Data, &row); err != nil {
				c.logger.Warn("skipping unparsable span row", "error", err)
				continue
			}
			spans = append(spans, Span{
				SpanID:       row.SpanID,
				TraceID:      row.TraceID,
				Name:         row.Name,
				ServiceName:  row.ServiceName,
				Timestamp:    item.Timestamp,
				DurationNano: row.DurationNano,
				HasError:     row.HasError,
				StatusMsg:    row.StatusMessage,
				Attributes:   mergeAttributes(row),
			})
		}
	}
	return spans, nil
}

func mergeAttributes(row spanRow) map[string]string {
	if len(row.AttributesString) == 0 && len(row.AttributesNum) == 0 {
		return nil
	}
	m := make(map[string]string, len(row.AttributesString)+len(row.AttributesNum))
	for k, v := range row.AttributesString {
		m[k] = v
	}
	for k, v := range row.AttributesNum {
		m[k] = fmt.Sprintf("%v", v)
	}
	return m
}
