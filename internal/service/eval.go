// Package service sits between the HTTP handlers and the evaluator: input
// validation, history recording, and error translation live here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/lineval/internal/apperror"
	"github.com/sakif/lineval/internal/engine"
	"github.com/sakif/lineval/internal/executor"
	"github.com/sakif/lineval/internal/model"
	"github.com/sakif/lineval/internal/repository"
)

// The in-process engine is the canonical evaluator implementation.
var _ executor.Evaluator = (*engine.Engine)(nil)

const (
	// MaxCodeLength bounds a single snippet.
	MaxCodeLength = 64 * 1024
	// MaxContextIDLength bounds a context id.
	MaxContextIDLength = 256
)

type EvalService struct {
	evaluator executor.Evaluator
	history   repository.EvaluationRepository // nil disables recording
	logger    *slog.Logger

	// The evaluator requires callers to serialize per context id; this
	// service is that caller, so it holds a per-id lock across every
	// operation that touches a context's runtime or console.
	mu    sync.Mutex
	locks map[string]*contextLock
}

type contextLock struct {
	mu   sync.Mutex
	refs int
}

func NewEvalService(evaluator executor.Evaluator, history repository.EvaluationRepository, logger *slog.Logger) *EvalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvalService{
		evaluator: evaluator,
		history:   history,
		logger:    logger,
		locks:     make(map[string]*contextLock),
	}
}

// lockContext blocks until this goroutine holds the context's lock. Locks
// are reference counted so the map does not grow with every id ever seen.
func (s *EvalService) lockContext(contextID string) *contextLock {
	s.mu.Lock()
	l := s.locks[contextID]
	if l == nil {
		l = &contextLock{}
		s.locks[contextID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *EvalService) unlockContext(contextID string, l *contextLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, contextID)
	}
	s.mu.Unlock()
}

// Evaluate validates the request, runs the snippet, and records the
// outcome. Snippet failures are data, not errors: they come back inside
// the result and are recorded like successes.
func (s *EvalService) Evaluate(ctx context.Context, contextID, code string, timeout time.Duration) (*engine.Result, error) {
	contextID, err := s.checkContextID(contextID)
	if err != nil {
		return nil, err
	}
	if len(code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code", fmt.Sprintf("code exceeds %d bytes", MaxCodeLength))
	}

	l := s.lockContext(contextID)
	defer s.unlockContext(contextID, l)

	start := time.Now()
	res, err := s.evaluator.Evaluate(ctx, contextID, code, timeout)
	if err != nil {
		if errors.Is(err, engine.ErrClosed) {
			return nil, apperror.Unavailable("evaluator is shut down")
		}
		return nil, fmt.Errorf("evaluate in context %q: %w", contextID, err)
	}

	s.record(ctx, contextID, code, res, time.Since(start))
	return res, nil
}

// Reset clears the context's state while keeping the id live.
func (s *EvalService) Reset(contextID string) error {
	contextID, err := s.checkContextID(contextID)
	if err != nil {
		return err
	}
	l := s.lockContext(contextID)
	defer s.unlockContext(contextID, l)
	if err := s.evaluator.Reset(contextID); err != nil {
		if errors.Is(err, engine.ErrClosed) {
			return apperror.Unavailable("evaluator is shut down")
		}
		return fmt.Errorf("reset context %q: %w", contextID, err)
	}
	return nil
}

// Dispose removes the context and its recorded history.
func (s *EvalService) Dispose(ctx context.Context, contextID string) error {
	contextID, err := s.checkContextID(contextID)
	if err != nil {
		return err
	}
	l := s.lockContext(contextID)
	defer s.unlockContext(contextID, l)
	s.evaluator.Dispose(contextID)
	if s.history != nil {
		if err := s.history.DeleteByContext(ctx, contextID); err != nil {
			s.logger.Warn("delete evaluation history", "contextId", contextID, "error", err)
		}
	}
	return nil
}

// Console returns the console output of the context's most recent
// evaluation.
func (s *EvalService) Console(contextID string) ([]string, error) {
	contextID, err := s.checkContextID(contextID)
	if err != nil {
		return nil, err
	}
	l := s.lockContext(contextID)
	defer s.unlockContext(contextID, l)
	lines, ok := s.evaluator.PeekConsole(contextID)
	if !ok {
		return nil, apperror.NotFound("context", contextID)
	}
	return lines, nil
}

// History lists the context's recorded evaluations, newest first.
func (s *EvalService) History(ctx context.Context, contextID string, opts repository.ListOptions) ([]model.Evaluation, error) {
	contextID, err := s.checkContextID(contextID)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return []model.Evaluation{}, nil
	}
	evaluations, err := s.history.ListByContext(ctx, contextID, opts)
	if err != nil {
		return nil, fmt.Errorf("list history for %q: %w", contextID, err)
	}
	return evaluations, nil
}

func (s *EvalService) checkContextID(contextID string) (string, error) {
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return "", apperror.ValidationFailed("contextId", "context id is required")
	}
	if len(contextID) > MaxContextIDLength {
		return "", apperror.ValidationFailed("contextId", fmt.Sprintf("context id exceeds %d bytes", MaxContextIDLength))
	}
	if s.evaluator == nil {
		return "", apperror.Unavailable("evaluator is not running")
	}
	return contextID, nil
}

// record is best effort: a history failure is logged, never surfaced.
func (s *EvalService) record(ctx context.Context, contextID, code string, res *engine.Result, took time.Duration) {
	if s.history == nil {
		return
	}

	kind := "ok"
	rendered := res.Rendered
	if res.Failure != nil {
		kind = string(res.Failure.Kind)
		rendered = res.Failure.Message
	}

	ev := &model.Evaluation{
		ContextID:  contextID,
		Code:       code,
		Kind:       kind,
		Rendered:   rendered,
		Console:    strings.Join(res.Console, "\n"),
		DurationMs: took.Milliseconds(),
	}
	if err := s.history.Insert(ctx, ev); err != nil {
		s.logger.Warn("record evaluation", "contextId", contextID, "error", err)
	}
}
