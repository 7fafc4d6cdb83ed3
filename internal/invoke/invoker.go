// Package invoke executes validated tool calls against the MCP server
// with bounded retry on transient transport failures. Remote failures
// of every kind are absorbed into the Result; nothing here takes down
// a conversation turn.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"

	"github.com/lumenlab/mermhost/internal/backoff"
	"github.com/lumenlab/mermhost/internal/mcp"
)

// Result is the outcome of one tool invocation. Success false with a
// non-empty Error covers both remote tool failure and exhausted
// transport retries.
type Result struct {
	Success  bool
	Payload  map[string]any
	Text     string
	Error    string
	Attempts int
}

// Caller is the slice of the MCP client the invoker needs.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolCallResult, error)
}

// Invoker calls tools with a retry policy shared with the registry.
type Invoker struct {
	caller      Caller
	policy      backoff.Policy
	maxAttempts int
	logger      *slog.Logger
}

// New creates an Invoker. maxAttempts bounds transport retries; tool
// application errors are never retried.
func New(caller Caller, policy backoff.Policy, maxAttempts int, logger *slog.Logger) *Invoker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		caller:      caller,
		policy:      policy,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "invoker"),
	}
}

// Invoke calls the named tool. Transient transport failures retry up
// to the attempt budget with exponential backoff; a JSON-RPC error or
// an isError result is the tool's answer and returns immediately. The
// returned Result always describes what happened; no remote failure is
// surfaced as a Go error.
func (inv *Invoker) Invoke(ctx context.Context, name string, params map[string]any) Result {
	attempts := 0

	res, err := backoff.Retry(ctx, inv.policy, inv.maxAttempts, func(attempt int) (*mcp.ToolCallResult, error) {
		attempts = attempt
		r, callErr := inv.caller.CallTool(ctx, name, params)
		if callErr != nil {
			if !Transient(callErr) {
				return nil, backoff.Permanent(callErr)
			}
			inv.logger.Warn("tool call transport failure",
				"tool", name, "attempt", attempt, "error", callErr)
			return nil, callErr
		}
		return r, nil
	})
	if err != nil {
		return Result{Error: err.Error(), Attempts: attempts}
	}

	text := res.Text()
	out := Result{Text: text, Attempts: attempts}
	if res.IsError {
		out.Error = text
		if out.Error == "" {
			out.Error = "tool reported an error"
		}
		return out
	}

	out.Success = true
	// Tools that answer in JSON get a structured payload; plain text
	// stays in Text.
	var payload map[string]any
	if json.Unmarshal([]byte(text), &payload) == nil {
		out.Payload = payload
	}
	return out
}

// Transient reports whether a transport error is worth retrying:
// timeouts, resets, refused connections, and truncated streams. A
// JSON-RPC error response came from a live server and is never
// transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr *mcp.JSONRPCError
	if errors.As(err, &rpcErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, mcp.ErrNotConnected) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "timeout", "temporarily unavailable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
