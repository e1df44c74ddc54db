// Package engine evaluates JavaScript snippets against named persistent
// contexts. Each context keeps its own sandboxed goja runtime; the engine
// owns the registry, bounds how many contexts stay live, and enforces
// per-call wall-clock timeouts.
package engine

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("engine closed")

const (
	// DefaultTimeout bounds an evaluation when no timeout is configured.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxContexts bounds the registry when no cap is configured.
	DefaultMaxContexts = 16
)

// Options are the engine tunables. Zero values select the defaults.
type Options struct {
	DefaultTimeout  time.Duration
	MaxContexts     int
	MaxRenderLength int
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.MaxContexts <= 0 {
		o.MaxContexts = DefaultMaxContexts
	}
	return o
}

// Engine is the in-process evaluator. Callers must serialize calls per
// context id; calls for distinct ids may run concurrently, though snippet
// execution itself is one goroutine per call.
type Engine struct {
	logger *slog.Logger

	mu       sync.Mutex
	opts     Options
	contexts map[string]*Context
	order    *list.List // front = most recently used
	closed   bool
}

// New builds an engine. logger may be nil.
func New(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:   logger,
		opts:     opts.withDefaults(),
		contexts: make(map[string]*Context),
		order:    list.New(),
	}
}

// Evaluate runs code in the context named by id, creating it on first use.
// A non-positive timeout selects the configured default. The returned
// result is always non-nil when err is nil: snippet failures are carried
// in Result.Failure, not in err.
//
// Top-level bindings behave like a REPL session, not like a single script:
// const and let declarations stay writable across snippets, so a later
// assignment to a const-declared name succeeds where a one-shot script
// would throw a TypeError.
func (e *Engine) Evaluate(ctx context.Context, id, code string, timeout time.Duration) (*Result, error) {
	c, timeout, err := e.acquire(id, timeout)
	if err != nil {
		return nil, err
	}
	defer e.release(c)

	c.console = c.console[:0]

	var res *Result
	if strings.TrimSpace(code) == "" {
		// Nothing to run; an empty snippet completes like a statement.
		res = undefinedResult(true)
	} else {
		res = e.run(ctx, c, code, timeout)
	}
	if len(c.console) > 0 {
		res.Console = append([]string(nil), c.console...)
	}
	return res, nil
}

// run races the evaluation goroutine against the deadline. On expiry the
// runtime is interrupted, which unwinds RunString; the interrupt is
// cleared once the goroutine has returned so the context stays usable.
func (e *Engine) run(ctx context.Context, c *Context, code string, timeout time.Duration) *Result {
	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed(FailureInternal, fmt.Sprintf("evaluation panicked: %v", r))
			}
		}()
		done <- c.evalOnce(code)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return e.interrupt(c, done, "evaluation canceled")
	case <-timer.C:
		e.logger.Warn("evaluation timed out", "contextId", c.id, "timeout", timeout)
		return e.interrupt(c, done, "evaluation timed out")
	}
}

func (e *Engine) interrupt(c *Context, done <-chan *Result, reason string) *Result {
	c.vm.Interrupt(reason)
	res := <-done
	c.vm.ClearInterrupt()
	return res
}

// Reset discards the context's state but keeps the id registered. Unknown
// ids are created fresh, which makes reset idempotent with first use.
func (e *Engine) Reset(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if c, ok := e.contexts[id]; ok {
		return c.rebuild()
	}
	_, err := e.createLocked(id)
	return err
}

// Dispose removes the context and drops its runtime. Unknown ids are a
// no-op.
func (e *Engine) Dispose(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.contexts[id]; ok {
		e.removeLocked(c)
	}
}

// PeekConsole returns the console lines captured by the most recent
// evaluation in the context.
func (e *Engine) PeekConsole(id string) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), c.console...), true
}

// SetLimits applies new tunables to a running engine; zero fields keep
// their current values. Shrinking the context cap evicts immediately.
func (e *Engine) SetLimits(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.DefaultTimeout > 0 {
		e.opts.DefaultTimeout = opts.DefaultTimeout
	}
	if opts.MaxContexts > 0 {
		e.opts.MaxContexts = opts.MaxContexts
	}
	if opts.MaxRenderLength > 0 {
		e.opts.MaxRenderLength = opts.MaxRenderLength
		for _, c := range e.contexts {
			c.maxRender.Store(int64(opts.MaxRenderLength))
		}
	}
	e.evictLocked()
}

// Close drops every context. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.contexts = make(map[string]*Context)
	e.order.Init()
	return nil
}

func (e *Engine) acquire(id string, timeout time.Duration) (*Context, time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, 0, ErrClosed
	}
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	c, ok := e.contexts[id]
	if !ok {
		var err error
		if c, err = e.createLocked(id); err != nil {
			return nil, 0, err
		}
	} else {
		e.order.MoveToFront(c.elem)
	}
	c.busy = true
	return c, timeout, nil
}

func (e *Engine) release(c *Context) {
	e.mu.Lock()
	c.busy = false
	e.evictLocked()
	e.mu.Unlock()
}

func (e *Engine) createLocked(id string) (*Context, error) {
	c, err := newContext(id, e.opts.MaxRenderLength)
	if err != nil {
		return nil, fmt.Errorf("create context %q: %w", id, err)
	}
	e.contexts[id] = c
	c.elem = e.order.PushFront(c)
	e.evictLocked()
	e.logger.Debug("created context", "contextId", id)
	return c, nil
}

// evictLocked trims the registry to the cap, least recently used first. A
// context that is mid-evaluation is never the victim.
func (e *Engine) evictLocked() {
	for len(e.contexts) > e.opts.MaxContexts {
		el := e.order.Back()
		for el != nil && el.Value.(*Context).busy {
			el = el.Prev()
		}
		if el == nil {
			return
		}
		victim := el.Value.(*Context)
		e.removeLocked(victim)
		e.logger.Debug("evicted context", "contextId", victim.id)
	}
}

func (e *Engine) removeLocked(c *Context) {
	delete(e.contexts, c.id)
	e.order.Remove(c.elem)
}
