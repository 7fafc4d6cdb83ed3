// Package singleflight suppresses duplicate in-flight work: concurrent
// callers for the same key share one execution and its result.
package singleflight

import "sync"

// Group namespaces units of work by key. The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

type call[V any] struct {
	wg     sync.WaitGroup
	val    V
	err    error
	shared bool
}

// Do executes fn, making sure only one execution is in flight for key at
// a time. Duplicate callers wait for the original and receive the same
// result. The third return value reports whether the result was shared
// with other callers.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (V, error, bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}

	if c, ok := g.calls[key]; ok {
		c.shared = true
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := new(call[V])
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	c.wg.Done()

	return c.val, c.err, c.shared
}

// Forget drops the in-flight call for key so that a future Do executes
// fn again instead of waiting on the earlier call.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}
