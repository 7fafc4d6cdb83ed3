package intent

import (
	"encoding/json"
	"strings"

	"github.com/lumenlab/mermhost/internal/registry"
)

// BuildPrompt renders the classification instruction for one snapshot.
// It is a pure function over the snapshot so prompt construction and
// response parsing stay independently testable.
func BuildPrompt(snap *registry.Snapshot) string {
	toolsJSON, _ := json.MarshalIndent(snap.Tools, "", "  ")
	resourcesJSON, _ := json.MarshalIndent(snap.Resources, "", "  ")
	names := snap.ToolNames()

	var b strings.Builder
	b.WriteString(`You are an intent analyst for a tool-calling assistant. Decide whether the user's request needs one of the available tools or a plain conversational answer.

Available tools:
`)
	b.Write(toolsJSON)
	b.WriteString("\n\nAvailable resources:\n")
	b.Write(resourcesJSON)
	b.WriteString("\n\nValid tool names: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(`

Respond with exactly one JSON object and nothing else. No prose before or after it, no markdown fence.

If a tool is needed:
{
  "requires_tool": true,
  "selected_tool": "<one of the valid tool names>",
  "confidence": 0.95,
  "reasoning": "<why this tool>",
  "tool_parameters": {"<param>": "<value>"},
  "tool_description": "<what the call will do>"
}

If no tool is needed:
{
  "requires_tool": false,
  "confidence": 0.9,
  "reasoning": "<why no tool>",
  "direct_response": "<your answer to the user>"
}

Rules:
- selected_tool must be one of: `)
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(`
- tool_parameters must contain every required parameter of the selected tool, fully assembled from the user's request
- strings inside the JSON must escape newlines as \n and embedded quotes as \"
- confidence is a number between 0 and 1`)

	return b.String()
}
