// Package registry caches the capability listing of the remote tool
// service: which tools and resources it exposes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlab/mermhost/internal/backoff"
	"github.com/lumenlab/mermhost/internal/mcp"
	"github.com/lumenlab/mermhost/internal/singleflight"
)

// ErrConnectivity marks a refresh that failed because the tool service
// was unreachable after the retry budget.
var ErrConnectivity = errors.New("tool service unreachable")

// Snapshot is an immutable capability listing. It is shared read-only
// between the classifier and the validator; never mutate it after
// construction.
type Snapshot struct {
	Tools     []*mcp.ToolDescriptor
	Resources []*mcp.ResourceDescriptor
	FetchedAt time.Time
}

// Tool resolves a descriptor by name, or nil if absent.
func (s *Snapshot) Tool(name string) *mcp.ToolDescriptor {
	if s == nil {
		return nil
	}
	for _, t := range s.Tools {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ToolNames returns the tool names in snapshot order.
func (s *Snapshot) ToolNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Tools))
	for i, t := range s.Tools {
		names[i] = t.Name
	}
	return names
}

// Lister is the read-only slice of the MCP client the registry needs.
type Lister interface {
	ListTools(ctx context.Context) ([]*mcp.ToolDescriptor, error)
	ListResources(ctx context.Context) ([]*mcp.ResourceDescriptor, error)
}

// Registry owns the snapshot cache for one tool service. Concurrent
// callers awaiting a refresh share a single in-flight fetch.
type Registry struct {
	client      Lister
	logger      *slog.Logger
	policy      backoff.Policy
	maxAttempts int

	mu       sync.RWMutex
	snapshot *Snapshot

	flight singleflight.Group[string, *Snapshot]
}

// New creates a registry over client. maxAttempts bounds the fetch
// retries per refresh.
func New(client Lister, policy backoff.Policy, maxAttempts int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Registry{
		client:      client,
		logger:      logger.With("component", "registry"),
		policy:      policy,
		maxAttempts: maxAttempts,
	}
}

// Get returns the cached snapshot, refreshing only when the cache is
// empty (at startup or after Invalidate).
func (r *Registry) Get(ctx context.Context) (*Snapshot, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return r.Refresh(ctx)
}

// Refresh fetches a fresh snapshot and installs it in the cache.
// Concurrent refreshes coalesce into one fetch whose result every
// waiter shares.
func (r *Registry) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err, shared := r.flight.Do("refresh", func() (*Snapshot, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("refresh coalesced with in-flight fetch")
	}
	return snap, nil
}

// Invalidate drops the cached snapshot so the next Get refreshes.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.mu.Unlock()
}

func (r *Registry) fetch(ctx context.Context) (*Snapshot, error) {
	snap, err := backoff.Retry(ctx, r.policy, r.maxAttempts, func(attempt int) (*Snapshot, error) {
		if attempt > 1 {
			r.logger.Debug("retrying capability fetch", "attempt", attempt)
		}

		tools, err := r.client.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		resources, err := r.client.ListResources(ctx)
		if err != nil {
			return nil, fmt.Errorf("list resources: %w", err)
		}

		return &Snapshot{
			Tools:     tools,
			Resources: resources,
			FetchedAt: time.Now(),
		}, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	r.logger.Info("capability snapshot refreshed",
		"tools", len(snap.Tools),
		"resources", len(snap.Resources))
	return snap, nil
}
