// Package host runs the interactive conversation loop: read a line,
// classify it, validate and invoke if a tool is wanted, present the
// outcome, repeat. Turns are strictly sequential and every per-turn
// value is discarded when the turn ends.
package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lumenlab/mermhost/internal/intent"
	"github.com/lumenlab/mermhost/internal/invoke"
	"github.com/lumenlab/mermhost/internal/registry"
	"github.com/lumenlab/mermhost/internal/validate"
)

// Classifier produces a decision for one user input.
type Classifier interface {
	Classify(ctx context.Context, userText string, snap *registry.Snapshot) (*intent.Decision, error)
}

// Chatter answers conversationally when no tool is involved.
type Chatter interface {
	Chat(ctx context.Context, userText string) (string, error)
}

// Snapshots supplies the current capability snapshot.
type Snapshots interface {
	Get(ctx context.Context) (*registry.Snapshot, error)
}

// Validator checks decisions before invocation.
type Validator interface {
	Validate(decision *intent.Decision, snap *registry.Snapshot) validate.Outcome
}

// ToolInvoker executes a validated tool call.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) invoke.Result
}

// Turn records one completed conversation turn for logging.
type Turn struct {
	Sequence  int
	Input     string
	Decision  *intent.Decision
	Result    *invoke.Result
	Timestamp time.Time
}

// Loop drives the conversation over an input stream and an output
// writer. One goroutine runs it; there is no cross-turn concurrency.
type Loop struct {
	in        *bufio.Scanner
	out       io.Writer
	snapshots Snapshots
	classify  Classifier
	validate  Validator
	invoke    ToolInvoker
	chat      Chatter
	logger    *slog.Logger

	seq int
}

// New creates a conversation loop over the given streams.
func New(in io.Reader, out io.Writer, snapshots Snapshots, classifier Classifier, validator Validator, invoker ToolInvoker, chatter Chatter, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		in:        bufio.NewScanner(in),
		out:       out,
		snapshots: snapshots,
		classify:  classifier,
		validate:  validator,
		invoke:    invoker,
		chat:      chatter,
		logger:    logger.With("component", "host"),
	}
}

// exit sentinels, matched case-insensitively.
var exitWords = map[string]bool{"quit": true, "exit": true, "q": true}

// Run reads lines until an exit sentinel, end of input, or context
// cancellation. Empty lines re-prompt without consuming a turn. A
// failed turn is reported to the user and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	fmt.Fprintln(l.out, "Type a request, or quit/exit/q to leave.")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(l.out, "> ")
		if !l.in.Scan() {
			if err := l.in.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(l.out)
			return nil
		}

		line := strings.TrimSpace(l.in.Text())
		if line == "" {
			continue
		}
		if exitWords[strings.ToLower(line)] {
			fmt.Fprintln(l.out, "Bye.")
			return nil
		}

		l.seq++
		l.runTurn(ctx, line)
	}
}

// runTurn executes one full turn. Nothing a turn does can end the
// loop; all failures are presented and logged.
func (l *Loop) runTurn(ctx context.Context, input string) {
	turn := Turn{Sequence: l.seq, Input: input, Timestamp: time.Now()}

	snap, err := l.snapshots.Get(ctx)
	if err != nil {
		l.logger.Error("capability refresh failed", "turn", l.seq, "error", err)
		fmt.Fprintln(l.out, "The tool server is unreachable right now. Please try again in a moment.")
		return
	}

	decision, err := l.classify.Classify(ctx, input, snap)
	if err != nil {
		l.logger.Error("classification failed", "turn", l.seq, "error", err)
		fmt.Fprintln(l.out, "I couldn't reach the language model. Please try again.")
		return
	}
	turn.Decision = decision

	if !decision.RequiresTool {
		l.respondChat(ctx, input, decision)
		l.finishTurn(turn)
		return
	}

	outcome := l.validate.Validate(decision, snap)
	switch {
	case outcome.UnknownTool:
		l.logger.Warn("decision selected unknown tool",
			"turn", l.seq, "tool", decision.SelectedTool)
		fmt.Fprintf(l.out, "I wanted to use a tool called %q, but the server doesn't offer it. Answering directly instead.\n", decision.SelectedTool)
		l.respondChat(ctx, input, decision)
		l.finishTurn(turn)
		return
	case !outcome.OK:
		l.presentInvalid(outcome)
		l.finishTurn(turn)
		return
	}

	fmt.Fprintf(l.out, "Calling %s", decision.SelectedTool)
	if decision.ToolDescription != "" {
		fmt.Fprintf(l.out, ": %s", decision.ToolDescription)
	}
	fmt.Fprintln(l.out)
	l.presentParams(decision.ToolParameters)

	result := l.invoke.Invoke(ctx, decision.SelectedTool, decision.ToolParameters)
	turn.Result = &result
	l.presentResult(decision.SelectedTool, result)
	l.finishTurn(turn)
}

// respondChat prints the decision's direct response, or asks the model
// for one when the decision carries none.
func (l *Loop) respondChat(ctx context.Context, input string, decision *intent.Decision) {
	reply := decision.DirectResponse
	if reply == "" {
		answered, err := l.chat.Chat(ctx, input)
		if err != nil {
			l.logger.Warn("chat completion failed", "turn", l.seq, "error", err)
			reply = intent.FallbackResponse
		} else {
			reply = answered
		}
	}
	fmt.Fprintln(l.out, reply)
}

// finishTurn logs the complete turn record. This is the only place a
// turn's decision and result are kept beyond presentation.
func (l *Loop) finishTurn(turn Turn) {
	attrs := []any{
		"turn", turn.Sequence,
		"input_length", len(turn.Input),
	}
	if d := turn.Decision; d != nil {
		attrs = append(attrs,
			"requires_tool", d.RequiresTool,
			"selected_tool", d.SelectedTool,
			"confidence", d.Confidence,
			"reasoning", d.Reasoning,
		)
	}
	if r := turn.Result; r != nil {
		attrs = append(attrs,
			"success", r.Success,
			"attempts", r.Attempts,
			"tool_error", r.Error,
		)
	}
	l.logger.Info("turn complete", attrs...)
}
