package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"agentmesh/internal/domain"
)

// Discoverer connects to a tool's MCP server, lists its tools, and
// normalizes their schemas into domain.ToolCapability entries.
type Discoverer struct {
	callTimeout time.Duration
	logger      *slog.Logger

	// connect is swappable for tests.
	connect func(ctx context.Context, cfg *domain.MCPToolConfig, headers map[string]string) (mcpClient, error)
}

// mcpClient is the slice of the MCP client the discoverer needs.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	Close() error
}

// NewDiscoverer creates a discoverer with the given per-call timeout.
func NewDiscoverer(callTimeout time.Duration, logger *slog.Logger) *Discoverer {
	d := &Discoverer{callTimeout: callTimeout, logger: logger}
	d.connect = d.dial
	return d
}

// DiscoveryResult is the outcome of probing one MCP server.
type DiscoveryResult struct {
	Health       domain.ToolHealth
	Capabilities []domain.ToolCapability
	Err          error
}

// Discover probes the tool's server. It never returns an error: failures
// are encoded in the result's health so callers can persist them.
func (d *Discoverer) Discover(ctx context.Context, tool *domain.Tool, headers map[string]string) DiscoveryResult {
	if tool.Kind != domain.ToolKindMCP || tool.MCP == nil {
		return DiscoveryResult{Health: domain.ToolHealthUnknown,
			Err: fmt.Errorf("tool %s is not MCP backed", tool.ID)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	client, err := d.connect(ctx, tool.MCP, headers)
	if err != nil {
		return DiscoveryResult{Health: classifyFailure(err), Err: err}
	}
	defer client.Close()

	result, err := client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return DiscoveryResult{Health: classifyFailure(err), Err: err}
	}

	caps := make([]domain.ToolCapability, 0, len(result.Tools))
	for _, t := range result.Tools {
		caps = append(caps, domain.ToolCapability{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: NormalizeSchema(toolDocument(t)),
		})
	}
	return DiscoveryResult{Health: domain.ToolHealthHealthy, Capabilities: caps}
}

func (d *Discoverer) dial(ctx context.Context, cfg *domain.MCPToolConfig, headers map[string]string) (mcpClient, error) {
	all := make(map[string]string, len(cfg.Headers)+len(headers))
	for k, v := range cfg.Headers {
		all[k] = v
	}
	for k, v := range headers {
		all[k] = v
	}

	switch cfg.Transport {
	case domain.TransportSSE:
		c, err := mcpclient.NewSSEMCPClient(cfg.ServerURL, transport.WithHeaders(all))
		if err != nil {
			return nil, fmt.Errorf("create sse client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start sse client: %w", err)
		}
		if err := initialize(ctx, c); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	case domain.TransportStreamableHTTP, "":
		t, err := transport.NewStreamableHTTP(cfg.ServerURL, transport.WithHTTPHeaders(all))
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c := mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		if err := initialize(ctx, c); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func initialize(ctx context.Context, c *mcpclient.Client) error {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "agentmesh",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return domain.WrapOp("mcptool.initialize", err)
	}
	return nil
}

// classifyFailure maps a discovery error to a cached health state. Auth
// failures are distinguished so the dashboard can prompt for credentials.
func classifyFailure(err error) domain.ToolHealth {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") {
		return domain.ToolHealthNeedsAuth
	}
	return domain.ToolHealthUnhealthy
}

// toolDocument flattens an MCP tool into the generic shape the schema
// normalizer probes. The raw schema wins when the server sent one.
func toolDocument(t mcp.Tool) map[string]any {
	doc := map[string]any{}
	if len(t.RawInputSchema) > 0 {
		var raw any
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			doc["inputSchema"] = raw
		}
	} else {
		data, err := json.Marshal(t.InputSchema)
		if err == nil {
			var schema any
			if json.Unmarshal(data, &schema) == nil {
				doc["inputSchema"] = schema
			}
		}
	}
	return doc
}

// NormalizeSchema extracts the input schema from the varying shapes MCP
// servers return, probing inputSchema, parameters.properties, parameters,
// then schema.
func NormalizeSchema(doc map[string]any) json.RawMessage {
	if v, ok := doc["inputSchema"]; ok && v != nil {
		return marshalSchema(v)
	}
	if params, ok := doc["parameters"].(map[string]any); ok {
		if props, ok := params["properties"]; ok && props != nil {
			schema := map[string]any{"type": "object", "properties": props}
			if req, ok := params["required"]; ok {
				schema["required"] = req
			}
			return marshalSchema(schema)
		}
		return marshalSchema(params)
	}
	if v, ok := doc["schema"]; ok && v != nil {
		return marshalSchema(v)
	}
	return nil
}

func marshalSchema(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
