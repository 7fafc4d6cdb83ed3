package intent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lumenlab/mermhost/internal/mcp"
	"github.com/lumenlab/mermhost/internal/registry"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
	userText string
}

func (f *fakeCompleter) Complete(_ context.Context, systemPrompt, userText string, _ float32) (string, error) {
	f.prompt = systemPrompt
	f.userText = userText
	return f.response, f.err
}

func testSnapshot() *registry.Snapshot {
	return &registry.Snapshot{
		Tools: []*mcp.ToolDescriptor{
			{
				Name:        "render_mermaid",
				Description: "Render a mermaid script to an image file",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"script":{"type":"string"}},"required":["script"]}`),
			},
			{
				Name:        "validate_mermaid",
				Description: "Check a mermaid script for syntax errors",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"script":{"type":"string"}},"required":["script"]}`),
			},
		},
		Resources: []*mcp.ResourceDescriptor{
			{URI: "config://output_directory", Name: "output directory"},
		},
	}
}

func TestClassifyToolDecision(t *testing.T) {
	llm := &fakeCompleter{
		response: `{"requires_tool": true, "selected_tool": "render_mermaid", "confidence": 0.92, "tool_parameters": {"script": "graph TD"}}`,
	}
	c := NewClassifier(llm, nil)

	d, err := c.Classify(context.Background(), "draw me a flowchart", testSnapshot())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !d.RequiresTool || d.SelectedTool != "render_mermaid" {
		t.Errorf("decision = %+v", d)
	}
	if llm.userText != "draw me a flowchart" {
		t.Errorf("user text sent = %q", llm.userText)
	}
}

func TestClassifyChatDecision(t *testing.T) {
	llm := &fakeCompleter{
		response: "```json\n{\"requires_tool\": false, \"confidence\": 0.85, \"direct_response\": \"Hello!\"}\n```",
	}
	c := NewClassifier(llm, nil)

	d, err := c.Classify(context.Background(), "hi there", testSnapshot())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.RequiresTool {
		t.Error("RequiresTool = true, want chat path")
	}
	if d.DirectResponse != "Hello!" {
		t.Errorf("DirectResponse = %q", d.DirectResponse)
	}
}

func TestClassifyUnrecoverableFallsBack(t *testing.T) {
	llm := &fakeCompleter{response: "I have absolutely no idea what you mean."}
	c := NewClassifier(llm, nil)

	d, err := c.Classify(context.Background(), "???", testSnapshot())
	if err != nil {
		t.Fatalf("Classify() error = %v, want fallback instead", err)
	}
	if d.RequiresTool {
		t.Error("fallback decision must not select a tool")
	}
	if d.Confidence != 0 {
		t.Errorf("fallback confidence = %v, want 0", d.Confidence)
	}
	if d.DirectResponse != FallbackResponse {
		t.Errorf("DirectResponse = %q", d.DirectResponse)
	}
}

func TestClassifyUnknownToolFallsBack(t *testing.T) {
	llm := &fakeCompleter{
		response: `{"requires_tool": true, "selected_tool": "delete_everything", "confidence": 1, "tool_parameters": {}}`,
	}
	c := NewClassifier(llm, nil)

	d, err := c.Classify(context.Background(), "do the thing", testSnapshot())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d.DirectResponse != FallbackResponse {
		t.Errorf("decision = %+v, want fallback", d)
	}
}

func TestClassifyCompletionError(t *testing.T) {
	wantErr := errors.New("connection reset")
	llm := &fakeCompleter{err: wantErr}
	c := NewClassifier(llm, nil)

	if _, err := c.Classify(context.Background(), "hello", testSnapshot()); !errors.Is(err, wantErr) {
		t.Errorf("Classify() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestClassifyPromptCarriesSnapshot(t *testing.T) {
	llm := &fakeCompleter{response: `{"requires_tool": false, "direct_response": "ok"}`}
	c := NewClassifier(llm, nil)

	if _, err := c.Classify(context.Background(), "x", testSnapshot()); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	for _, want := range []string{"render_mermaid", "validate_mermaid", "config://output_directory"} {
		if !strings.Contains(llm.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
