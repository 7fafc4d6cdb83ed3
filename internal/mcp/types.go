// Package mcp implements a Model Context Protocol client speaking
// JSON-RPC 2.0 over stdio or HTTP.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TransportType specifies the MCP transport protocol.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

// ProtocolVersion is the MCP revision this client negotiates.
const ProtocolVersion = "2024-11-05"

// ServerConfig holds connection settings for one MCP server.
type ServerConfig struct {
	ID        string
	Transport TransportType

	// Stdio transport options
	Command string
	Args    []string
	Env     map[string]string
	WorkDir string

	// HTTP transport options
	URL     string
	Headers map[string]string

	Timeout time.Duration
}

// Validate rejects configurations the transports cannot act on.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server ID is required")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio config for %s: command is required", c.ID)
		}
	case TransportHTTP:
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("http config for %s: URL must start with http:// or https://", c.ID)
		}
	default:
		return fmt.Errorf("unknown transport %q for %s", c.Transport, c.ID)
	}
	return nil
}

// ToolDescriptor describes one remotely invocable tool. Immutable once
// fetched.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDescriptor describes one readable resource. Immutable.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContent holds the content of a read resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"` // base64
}

// ToolCallResult holds the result of calling a tool.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ToolResultContent is one piece of content from a tool result.
type ToolResultContent struct {
	Type     string `json:"type"` // text | image | resource
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Text concatenates the textual content pieces of the result.
func (r *ToolCallResult) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// JSON-RPC 2.0 wire types.

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCP-specific error codes.
const (
	ErrCodeResourceNotFound = -32001
	ErrCodeToolNotFound     = -32002
)

// ServerInfo identifies the remote server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
}

// ListToolsResult holds the result of tools/list.
type ListToolsResult struct {
	Tools []*ToolDescriptor `json:"tools"`
}

// ListResourcesResult holds the result of resources/list.
type ListResourcesResult struct {
	Resources []*ResourceDescriptor `json:"resources"`
}

// ReadResourceResult holds the result of resources/read.
type ReadResourceResult struct {
	Contents []*ResourceContent `json:"contents"`
}

// CallToolParams holds parameters for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
