package render

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lumenlab/mermhost/internal/mcp"
)

// ServerName identifies this service during the MCP handshake.
const ServerName = "mermaid-render"

// ServerVersion is reported in the initialize result.
const ServerVersion = "1.0.0"

// Server speaks the MCP server side of the protocol over stdio lines
// or HTTP POST, dispatching tool calls to a Renderer.
type Server struct {
	renderer *Renderer
	logger   *slog.Logger
}

// NewServer wraps a renderer in the MCP protocol surface.
func NewServer(renderer *Renderer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		renderer: renderer,
		logger:   logger.With("component", "render-server"),
	}
}

var renderSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "script": {"type": "string", "description": "Mermaid script to render"},
    "format": {"type": "string", "enum": ["png", "svg", "pdf"], "description": "Output format, default png"},
    "width": {"type": "integer", "description": "Image width, default 800"},
    "height": {"type": "integer", "description": "Image height, default 600"},
    "background": {"type": "string", "description": "Background color, default transparent"}
  },
  "required": ["script"]
}`)

var validateSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "script": {"type": "string", "description": "Mermaid script to check"}
  },
  "required": ["script"]
}`)

var formatsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {}
}`)

// Tools returns the descriptors this server advertises.
func (s *Server) Tools() []*mcp.ToolDescriptor {
	return []*mcp.ToolDescriptor{
		{
			Name:        "render_mermaid",
			Description: "Render a mermaid script to an image file and return its local path",
			InputSchema: renderSchema,
		},
		{
			Name:        "validate_mermaid",
			Description: "Check whether a mermaid script is syntactically valid",
			InputSchema: validateSchema,
		},
		{
			Name:        "get_supported_formats",
			Description: "List the output formats the renderer supports",
			InputSchema: formatsSchema,
		},
	}
}

// Resources returns the descriptors for the server's readable state
// and examples.
func (s *Server) Resources() []*mcp.ResourceDescriptor {
	return []*mcp.ResourceDescriptor{
		{URI: "config://output_directory", Name: "output directory", Description: "Directory rendered images are written to", MimeType: "text/plain"},
		{URI: "config://cli_path", Name: "mermaid CLI path", Description: "The mmdc binary in use", MimeType: "text/plain"},
		{URI: "examples://flowchart", Name: "flowchart example", Description: "A minimal flowchart script", MimeType: "text/plain"},
		{URI: "examples://sequence", Name: "sequence example", Description: "A minimal sequence diagram script", MimeType: "text/plain"},
	}
}

const flowchartExample = `flowchart TD
    A[Start] --> B{Decision}
    B -->|yes| C[First action]
    B -->|no| D[Second action]
    C --> E[End]
    D --> E`

const sequenceExample = `sequenceDiagram
    participant U as User
    participant S as System
    participant D as Database

    U->>S: login request
    S->>D: verify user
    D-->>S: verification result
    S-->>U: login response`

func (s *Server) readResource(uri string) (string, bool) {
	switch uri {
	case "config://output_directory":
		return s.renderer.OutputDir(), true
	case "config://cli_path":
		return s.renderer.CLIPath(), true
	case "examples://flowchart":
		return flowchartExample, true
	case "examples://sequence":
		return sequenceExample, true
	default:
		return "", false
	}
}

// Handle processes one decoded request and returns the response, or
// nil when the request was a notification.
func (s *Server) Handle(ctx context.Context, req *mcp.JSONRPCRequest) *mcp.JSONRPCResponse {
	if req.ID == nil {
		// Notification. notifications/initialized is the only one the
		// client sends; nothing to do for it.
		return nil
	}

	s.logger.Debug("request", "method", req.Method)
	result, rpcErr := s.dispatch(ctx, req)
	resp := &mcp.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}
	payload, err := json.Marshal(result)
	if err != nil {
		resp.Error = &mcp.JSONRPCError{Code: mcp.ErrCodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = payload
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *mcp.JSONRPCRequest) (any, *mcp.JSONRPCError) {
	switch req.Method {
	case "initialize":
		return mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    json.RawMessage(`{"tools":{},"resources":{}}`),
			ServerInfo:      mcp.ServerInfo{Name: ServerName, Version: ServerVersion},
		}, nil

	case "tools/list":
		return mcp.ListToolsResult{Tools: s.Tools()}, nil

	case "resources/list":
		return mcp.ListResourcesResult{Resources: s.Resources()}, nil

	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeInvalidParams, Message: err.Error()}
		}
		text, ok := s.readResource(params.URI)
		if !ok {
			return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeResourceNotFound, Message: fmt.Sprintf("unknown resource %q", params.URI)}
		}
		return mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContent{{URI: params.URI, MimeType: "text/plain", Text: text}},
		}, nil

	case "tools/call":
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeInvalidParams, Message: err.Error()}
		}
		return s.callTool(ctx, params)

	default:
		return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

// callTool executes one tool. Tool-level failures come back as isError
// results, not protocol errors; only an unknown name or undecodable
// arguments are protocol errors.
func (s *Server) callTool(ctx context.Context, params mcp.CallToolParams) (any, *mcp.JSONRPCError) {
	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	switch params.Name {
	case "render_mermaid":
		var req RenderRequest
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeInvalidParams, Message: err.Error()}
		}
		out := s.renderer.Render(ctx, req)
		return toolResult(out, !out.Success)

	case "validate_mermaid":
		var req struct {
			Script string `json:"script"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeInvalidParams, Message: err.Error()}
		}
		out := s.renderer.Validate(ctx, req.Script)
		return toolResult(out, false)

	case "get_supported_formats":
		return toolResult(Formats(), false)

	default:
		return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeToolNotFound, Message: fmt.Sprintf("unknown tool %q", params.Name)}
	}
}

func toolResult(payload any, isError bool) (any, *mcp.JSONRPCError) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, &mcp.JSONRPCError{Code: mcp.ErrCodeInternalError, Message: err.Error()}
	}
	return mcp.ToolCallResult{
		Content: []mcp.ToolResultContent{{Type: "text", Text: string(text)}},
		IsError: isError,
	}, nil
}

// ServeStdio reads newline-delimited JSON-RPC requests from in and
// writes responses to out, one per line, until EOF or context
// cancellation. This matches the client's stdio transport framing.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req mcp.JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(&mcp.JSONRPCResponse{
				JSONRPC: "2.0",
				Error:   &mcp.JSONRPCError{Code: mcp.ErrCodeParseError, Message: err.Error()},
			}); encErr != nil {
				return encErr
			}
			continue
		}

		resp := s.Handle(ctx, &req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ServeHTTP implements the HTTP POST endpoint the client's http
// transport targets: one JSON-RPC request per POST body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req mcp.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(&mcp.JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &mcp.JSONRPCError{Code: mcp.ErrCodeParseError, Message: err.Error()},
		})
		return
	}

	resp := s.Handle(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
