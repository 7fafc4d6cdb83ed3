package render

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumenlab/mermhost/internal/mcp"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	r, err := NewRenderer("mmdc", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return NewServer(r, nil)
}

func request(id any, method string, params any) *mcp.JSONRPCRequest {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &mcp.JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
}

func TestHandleInitialize(t *testing.T) {
	s := newTestServer(t)

	resp := s.Handle(context.Background(), request(1, "initialize", map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
	}))
	if resp == nil || resp.Error != nil {
		t.Fatalf("response = %+v", resp)
	}

	var result mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ProtocolVersion != mcp.ProtocolVersion {
		t.Errorf("ProtocolVersion = %q", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != ServerName {
		t.Errorf("ServerInfo = %+v", result.ServerInfo)
	}
}

func TestHandleNotificationProducesNoResponse(t *testing.T) {
	s := newTestServer(t)
	req := &mcp.JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"}
	if resp := s.Handle(context.Background(), req); resp != nil {
		t.Errorf("response = %+v, want nil for notification", resp)
	}
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer(t)

	resp := s.Handle(context.Background(), request(2, "tools/list", nil))
	var result mcp.ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		if len(tool.InputSchema) == 0 {
			t.Errorf("tool %s has no input schema", tool.Name)
		}
	}
	want := []string{"render_mermaid", "validate_mermaid", "get_supported_formats"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestHandleResources(t *testing.T) {
	s := newTestServer(t)

	resp := s.Handle(context.Background(), request(3, "resources/list", nil))
	var list mcp.ListResourcesResult
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Resources) != 4 {
		t.Fatalf("resources = %d, want 4", len(list.Resources))
	}

	resp = s.Handle(context.Background(), request(4, "resources/read", map[string]any{
		"uri": "examples://flowchart",
	}))
	var read mcp.ReadResourceResult
	if err := json.Unmarshal(resp.Result, &read); err != nil {
		t.Fatalf("decode read: %v", err)
	}
	if len(read.Contents) != 1 || !strings.Contains(read.Contents[0].Text, "flowchart TD") {
		t.Errorf("contents = %+v", read.Contents)
	}

	resp = s.Handle(context.Background(), request(5, "resources/read", map[string]any{
		"uri": "config://nope",
	}))
	if resp.Error == nil || resp.Error.Code != mcp.ErrCodeResourceNotFound {
		t.Errorf("error = %+v, want resource not found", resp.Error)
	}
}

func TestHandleCallFormats(t *testing.T) {
	s := newTestServer(t)

	resp := s.Handle(context.Background(), request(6, "tools/call", mcp.CallToolParams{
		Name: "get_supported_formats",
	}))
	if resp.Error != nil {
		t.Fatalf("error = %+v", resp.Error)
	}

	var result mcp.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.IsError {
		t.Fatal("IsError set for formats call")
	}
	var out FormatsOutput
	if err := json.Unmarshal([]byte(result.Text()), &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out.Default != "png" {
		t.Errorf("payload = %+v", out)
	}
}

func TestHandleCallRenderFailureIsToolError(t *testing.T) {
	s := newTestServer(t) // mmdc unlikely to exist in the test environment

	args, _ := json.Marshal(map[string]any{"script": "", "format": "png"})
	resp := s.Handle(context.Background(), request(7, "tools/call", mcp.CallToolParams{
		Name:      "render_mermaid",
		Arguments: args,
	}))
	if resp.Error != nil {
		t.Fatalf("protocol error = %+v, want tool-level error", resp.Error)
	}

	var result mcp.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.IsError {
		t.Error("IsError unset for failed render")
	}
}

func TestHandleUnknownToolAndMethod(t *testing.T) {
	s := newTestServer(t)

	resp := s.Handle(context.Background(), request(8, "tools/call", mcp.CallToolParams{Name: "no_such_tool"}))
	if resp.Error == nil || resp.Error.Code != mcp.ErrCodeToolNotFound {
		t.Errorf("error = %+v, want tool not found", resp.Error)
	}

	resp = s.Handle(context.Background(), request(9, "bogus/method", nil))
	if resp.Error == nil || resp.Error.Code != mcp.ErrCodeMethodNotFound {
		t.Errorf("error = %+v, want method not found", resp.Error)
	}
}

func TestServeStdio(t *testing.T) {
	s := newTestServer(t)

	var in bytes.Buffer
	in.WriteString(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n")
	in.WriteString(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	in.WriteString(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n")

	var out bytes.Buffer
	if err := s.ServeStdio(context.Background(), &in, &out); err != nil {
		t.Fatalf("ServeStdio() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("responses = %d, want 2 (notification is silent):\n%s", len(lines), out.String())
	}

	var second mcp.JSONRPCResponse
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second response: %v", err)
	}
	if second.Error != nil {
		t.Errorf("tools/list error = %+v", second.Error)
	}
}

func TestServeHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	s.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp mcp.JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("error = %+v", resp.Error)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/mcp", nil))
	if rec.Code != 405 {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}
