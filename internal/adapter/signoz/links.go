package signoz

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// TraceURL returns a deep link to one trace in the SigNoz UI.
func (c *Client) TraceURL(traceID string) string {
	if c.baseURL == "" || traceID == "" {
		return ""
	}
	return fmt.Sprintf("%s/trace/%s", c.baseURL, traceID)
}

// ExplorerURL builds a traces-explorer deep link filtered to one
// conversation. The query parameters mirror the explorer's own URL
// schema so the link lands on a pre-filled filter.
func (c *Client) ExplorerURL(conversationID string, lookback time.Duration) string {
	if c.baseURL == "" {
		return ""
	}

	composite := map[string]any{
		"queryType": "builder",
		"builder": map[string]any{
			"queryData": []any{map[string]any{
				"dataSource":        "traces",
				"queryName":         "A",
				"aggregateOperator": "noop",
				"aggregateAttribute": map[string]any{
					"id": "------", "key": "", "type": "", "dataType": "", "isColumn": false,
				},
				"filters": map[string]any{
					"op": "AND",
					"items": []any{map[string]any{
						"id": "conversation-filter",
						"key": map[string]any{
							"key":      "conversation.id",
							"dataType": "string",
							"type":     "tag",
							"isColumn": false,
						},
						"op":    "=",
						"value": conversationID,
					}},
				},
				"expression":   "A",
				"disabled":     false,
				"having":       []any{},
				"stepInterval": 60,
				"limit":        nil,
				"orderBy": []any{map[string]any{
					"columnName": "timestamp", "order": "desc",
				}},
				"groupBy":  []any{},
				"legend":   "",
				"reduceTo": "sum",
			}},
			"queryFormulas": []any{},
		},
	}

	options := map[string]any{
		"selectColumns": []any{
			explorerColumn("serviceName", "string", true),
			explorerColumn("name", "string", true),
			explorerColumn("durationNano", "float64", true),
			explorerColumn("httpMethod", "string", true),
			explorerColumn("responseStatusCode", "string", true),
		},
		"maxLines": 2,
		"format":   "raw",
	}

	pagination := map[string]any{"limit": 10, "offset": 0}

	q := url.Values{}
	q.Set("compositeQuery", mustJSON(composite))
	q.Set("options", mustJSON(options))
	q.Set("pagination", mustJSON(pagination))
	q.Set("panelTypes", `"list"`)
	q.Set("relativeTime", relativeTime(lookback))
	return c.baseURL + "/traces-explorer?" + q.Encode()
}

func explorerColumn(key, dataType string, isColumn bool) map[string]any {
	return map[string]any{
		"key":      key,
		"dataType": dataType,
		"type":     "tag",
		"isColumn": isColumn,
	}
}

// relativeTime renders a lookback as the explorer's relative-time token.
func relativeTime(lookback time.Duration) string {
	switch {
	case lookback <= 0:
		return "30m"
	case lookback < time.Hour:
		return fmt.Sprintf("%dm", int(lookback.Minutes()))
	case lookback < 24*time.Hour:
		return fmt.Sprintf("%dh", int(lookback.Hours()))
	default:
		return fmt.Sprintf("%dd", int(lookback.Hours()/24))
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
