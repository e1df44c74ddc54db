package isolate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/lineval/internal/engine"
	"github.com/sakif/lineval/internal/executor"
)

// ProxyConfig describes the worker fleet a Proxy manages.
type ProxyConfig struct {
	Bin         string
	Args        []string
	Env         []string
	MaxSessions int
	Logger      *slog.Logger
}

// Proxy satisfies the evaluator contract by giving each context id its own
// worker process. Console output is mirrored host-side from each result so
// PeekConsole does not need a round trip to the worker.
type Proxy struct {
	cfg    ProxyConfig
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*proxyEntry
}

type proxyEntry struct {
	sess     *Session
	console  []string
	lastUsed time.Time
	// busy marks a session with a call in flight; eviction skips it so a
	// worker is never killed out from under its caller.
	busy bool
}

var _ executor.Evaluator = (*Proxy)(nil)

func NewProxy(cfg ProxyConfig) *Proxy {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = engine.DefaultMaxContexts
	}
	return &Proxy{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*proxyEntry),
	}
}

func (p *Proxy) Evaluate(ctx context.Context, contextID, code string, timeout time.Duration) (*engine.Result, error) {
	entry, err := p.acquire(contextID)
	if err != nil {
		return nil, err
	}
	defer p.release(entry)

	res, err := entry.sess.Execute(ctx, code, timeout)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	entry.console = res.Console
	p.mu.Unlock()
	return res, nil
}

func (p *Proxy) Reset(contextID string) error {
	p.mu.Lock()
	entry, ok := p.sessions[contextID]
	if ok {
		entry.console = nil
		entry.busy = true
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	defer p.release(entry)
	return entry.sess.Reset(context.Background())
}

func (p *Proxy) Dispose(contextID string) {
	p.mu.Lock()
	entry, ok := p.sessions[contextID]
	delete(p.sessions, contextID)
	p.mu.Unlock()
	if ok {
		entry.sess.Close()
	}
}

func (p *Proxy) PeekConsole(contextID string) ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.sessions[contextID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), entry.console...), true
}

// Close kills every worker. The proxy cannot be reused.
func (p *Proxy) Close() error {
	p.mu.Lock()
	p.closed = true
	entries := make([]*proxyEntry, 0, len(p.sessions))
	for _, entry := range p.sessions {
		entries = append(entries, entry)
	}
	p.sessions = make(map[string]*proxyEntry)
	p.mu.Unlock()

	for _, entry := range entries {
		entry.sess.Close()
	}
	return nil
}

// acquire returns the session for a context id, creating it on first use
// and closing the least recently used one when over the cap.
func (p *Proxy) acquire(contextID string) (*proxyEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errSessionClosed
	}

	entry, ok := p.sessions[contextID]
	if !ok {
		entry = &proxyEntry{sess: NewSession(SessionConfig{
			Bin:    p.cfg.Bin,
			Args:   p.cfg.Args,
			Env:    p.cfg.Env,
			Logger: p.logger.With("contextId", contextID),
		})}
		p.sessions[contextID] = entry
		p.evictLocked(contextID)
	}
	entry.lastUsed = time.Now()
	entry.busy = true
	return entry, nil
}

func (p *Proxy) release(entry *proxyEntry) {
	p.mu.Lock()
	entry.busy = false
	p.evictLocked("")
	p.mu.Unlock()
}

// evictLocked trims the fleet to the cap, least recently used first. A
// session with a call in flight is never the victim; the registry may
// stay over the cap until that call releases it.
func (p *Proxy) evictLocked(keep string) {
	for len(p.sessions) > p.cfg.MaxSessions {
		var victimID string
		var victim *proxyEntry
		for id, entry := range p.sessions {
			if id == keep || entry.busy {
				continue
			}
			if victim == nil || entry.lastUsed.Before(victim.lastUsed) {
				victimID = id
				victim = entry
			}
		}
		if victim == nil {
			return
		}
		delete(p.sessions, victimID)
		victim.sess.Close()
		p.logger.Debug("evicted session", "contextId", victimID)
	}
}
