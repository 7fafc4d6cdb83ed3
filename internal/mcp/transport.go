package mcp

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotConnected is returned for calls on a closed or unconnected
// transport.
var ErrNotConnected = errors.New("mcp: not connected")

// Transport carries JSON-RPC messages to one MCP server.
type Transport interface {
	// Connect establishes the transport connection.
	Connect(ctx context.Context) error

	// Close closes the transport connection.
	Close() error

	// Call sends a request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification (no response expected).
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is usable.
	Connected() bool
}

// NewTransport creates a transport for the server configuration.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
