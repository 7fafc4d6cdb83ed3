package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Client talks to a single MCP server. It performs the initialize
// handshake and exposes the read-only listing operations plus tool
// invocation. Capability caching lives in the registry package, not
// here.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	serverInfo ServerInfo
}

// NewClient creates a client for cfg.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:    cfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect establishes the transport and runs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mermhost",
			"version": "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.serverInfo = initResult.ServerInfo
	c.logger.Info("connected to MCP server",
		"name", c.serverInfo.Name,
		"version", c.serverInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ServerInfo returns the connected server's identity.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}

// Connected reports whether the underlying transport is usable.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// ListTools fetches the server's tool descriptors, in server order.
func (c *Client) ListTools(ctx context.Context) ([]*ToolDescriptor, error) {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}
	return resp.Tools, nil
}

// ListResources fetches the server's resource descriptors, in server
// order.
func (c *Client) ListResources(ctx context.Context) ([]*ResourceDescriptor, error) {
	result, err := c.transport.Call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}

	var resp ListResourcesResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("parse resources/list result: %w", err)
	}
	return resp.Resources, nil
}

// CallTool invokes a tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = argsJSON
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &callResult, nil
}

// ReadResource reads a resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}

	var readResult ReadResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("parse resources/read result: %w", err)
	}
	return readResult.Contents, nil
}
