// Package intent turns free-text user requests into schema-validated
// decisions: invoke a named tool with arguments, or reply
// conversationally. Model output is untrusted; everything here is built
// to fail safe.
package intent

import (
	"encoding/json"
	"fmt"
)

// Decision is the classified intent for one turn. Produced fresh per
// turn and never persisted beyond logging.
type Decision struct {
	RequiresTool    bool           `json:"requires_tool"`
	SelectedTool    string         `json:"selected_tool,omitempty"`
	Confidence      float64        `json:"confidence"`
	Reasoning       string         `json:"reasoning,omitempty"`
	DirectResponse  string         `json:"direct_response,omitempty"`
	ToolParameters  map[string]any `json:"tool_parameters"`
	ToolDescription string         `json:"tool_description,omitempty"`
}

// FallbackResponse is the generic reply used when the model's output
// cannot be recovered into a valid decision.
const FallbackResponse = "Sorry, I couldn't understand that request. Please try rephrasing it."

// Fallback returns the fixed safe decision: chat path, zero confidence,
// empty parameters.
func Fallback() *Decision {
	return &Decision{
		RequiresTool:   false,
		Confidence:     0,
		DirectResponse: FallbackResponse,
		ToolParameters: map[string]any{},
	}
}

// decodeDecision parses a candidate JSON object and enforces the
// decision shape contract: requires_tool present as a bool, confidence
// a number when present, tool_parameters an object when present, and
// selected_tool naming a tool from validNames when requires_tool is
// true. A candidate violating any of these is a non-match.
func decodeDecision(candidate string, validNames []string) (*Decision, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, err
	}

	requiresRaw, ok := raw["requires_tool"]
	if !ok {
		return nil, fmt.Errorf("missing requires_tool")
	}

	d := &Decision{}
	if err := json.Unmarshal(requiresRaw, &d.RequiresTool); err != nil {
		return nil, fmt.Errorf("requires_tool: %w", err)
	}

	if v, ok := raw["selected_tool"]; ok {
		if err := json.Unmarshal(v, &d.SelectedTool); err != nil {
			return nil, fmt.Errorf("selected_tool: %w", err)
		}
	}
	if v, ok := raw["confidence"]; ok {
		if err := json.Unmarshal(v, &d.Confidence); err != nil {
			return nil, fmt.Errorf("confidence: %w", err)
		}
	}
	if v, ok := raw["reasoning"]; ok {
		if err := json.Unmarshal(v, &d.Reasoning); err != nil {
			return nil, fmt.Errorf("reasoning: %w", err)
		}
	}
	if v, ok := raw["direct_response"]; ok {
		if err := json.Unmarshal(v, &d.DirectResponse); err != nil {
			return nil, fmt.Errorf("direct_response: %w", err)
		}
	}
	if v, ok := raw["tool_description"]; ok {
		if err := json.Unmarshal(v, &d.ToolDescription); err != nil {
			return nil, fmt.Errorf("tool_description: %w", err)
		}
	}
	if v, ok := raw["tool_parameters"]; ok {
		if err := json.Unmarshal(v, &d.ToolParameters); err != nil {
			return nil, fmt.Errorf("tool_parameters: %w", err)
		}
	}
	if d.ToolParameters == nil {
		d.ToolParameters = map[string]any{}
	}

	// Confidence is advisory; keep it in range rather than rejecting.
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}

	if d.RequiresTool {
		if d.SelectedTool == "" {
			return nil, fmt.Errorf("requires_tool set but selected_tool empty")
		}
		found := false
		for _, name := range validNames {
			if name == d.SelectedTool {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("selected_tool %q not in capability snapshot", d.SelectedTool)
		}
	}

	return d, nil
}
