package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenlab/mermhost/internal/registry"
)

// classifyTemperature keeps the classification near-deterministic.
const classifyTemperature = 0.1

// Completer is the slice of the LLM client the classifier needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string, temperature float32) (string, error)
}

// Classifier builds the classification prompt, queries the model once,
// and repairs the response into a decision.
type Classifier struct {
	llm    Completer
	logger *slog.Logger
}

// NewClassifier creates a classifier over the given completion client.
func NewClassifier(llm Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		llm:    llm,
		logger: logger.With("component", "classifier"),
	}
}

// Classify produces a decision for userText under the given snapshot.
// Malformed model output never causes an error: the repair pipeline
// recovers what it can and everything else becomes the fallback
// decision. The model is queried exactly once per call; the only error
// path is a failed completion request.
func (c *Classifier) Classify(ctx context.Context, userText string, snap *registry.Snapshot) (*Decision, error) {
	prompt := BuildPrompt(snap)

	raw, err := c.llm.Complete(ctx, prompt, userText, classifyTemperature)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	decision, ok := Repair(raw, snap.ToolNames())
	if !ok {
		c.logger.Warn("model output unrecoverable, using fallback decision",
			"raw_length", len(raw))
		return Fallback(), nil
	}

	c.logger.Debug("classified intent",
		"requires_tool", decision.RequiresTool,
		"selected_tool", decision.SelectedTool,
		"confidence", decision.Confidence)
	return decision, nil
}
