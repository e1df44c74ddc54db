package isolate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sakif/lineval/internal/engine"
)

// killGrace is how long past the evaluation timeout the host waits for the
// worker's own interrupt to fire before killing the process. A worker
// stuck outside JavaScript (or not reading at all) only ever exceeds the
// deadline by this much.
const killGrace = 250 * time.Millisecond

var (
	errSessionClosed = errors.New("session closed")
	errSpawn         = errors.New("spawn worker")
	errDeadline      = errors.New("worker deadline exceeded")
)

type sessionState int

const (
	stateUnstarted sessionState = iota
	stateRunning
	stateDead
	stateClosed
)

// SessionConfig describes how to launch the worker binary.
type SessionConfig struct {
	Bin    string
	Args   []string
	Env    []string // appended to the host environment
	Logger *slog.Logger
}

// Session owns at most one live worker process and the requests in flight
// against it. A dead session (crash or kill) respawns transparently on the
// next call, with all interpreter state lost. Callers must serialize
// evaluations; Close may be called from anywhere.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   sessionState
	cmd     *exec.Cmd
	enc     *json.Encoder
	stdin   io.WriteCloser
	nextID  uint64
	pending map[uint64]chan response
}

func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, logger: logger}
}

// Execute runs code in the worker's context. Snippet and worker failures
// both come back inside the Result; the error return is reserved for a
// closed session and an unlaunchable binary.
func (s *Session) Execute(ctx context.Context, code string, timeout time.Duration) (*engine.Result, error) {
	if timeout <= 0 {
		timeout = engine.DefaultTimeout
	}
	resp, err := s.call(ctx, request{
		Action:    actionEval,
		Code:      code,
		TimeoutMs: timeout.Milliseconds(),
	}, timeout)
	switch {
	case err == nil:
	case errors.Is(err, errDeadline):
		return &engine.Result{Failure: &engine.Failure{
			Kind:    engine.FailureTimeout,
			Message: "evaluation timed out",
		}}, nil
	case errors.Is(err, errSessionClosed), errors.Is(err, errSpawn):
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return &engine.Result{Failure: &engine.Failure{
			Kind:    engine.FailureInternal,
			Message: err.Error(),
		}}, nil
	}

	if resp.Error != "" {
		return &engine.Result{Failure: &engine.Failure{
			Kind:    engine.FailureInternal,
			Message: resp.Error,
		}}, nil
	}
	if resp.Result == nil {
		return &engine.Result{Failure: &engine.Failure{
			Kind:    engine.FailureInternal,
			Message: "worker returned an empty response",
		}}, nil
	}
	return resp.Result, nil
}

// Reset clears the worker's context. A session with no live worker has
// nothing to reset; the next spawn starts fresh anyway.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	running := s.state == stateRunning
	s.mu.Unlock()
	if !running {
		return nil
	}

	resp, err := s.call(ctx, request{Action: actionReset}, 5*time.Second)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

// Pid returns the live worker's process id, or 0.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateRunning && s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// Close kills the worker and discards pending resolvers without resolving
// them. The session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	s.killLocked()
	s.pending = nil
}

func (s *Session) call(ctx context.Context, req request, timeout time.Duration) (*response, error) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil, errSessionClosed
	}
	if s.state != stateRunning {
		if err := s.spawnLocked(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.nextID++
	req.ID = s.nextID
	ch := make(chan response, 1)
	s.pending[req.ID] = ch
	if err := s.enc.Encode(&req); err != nil {
		delete(s.pending, req.ID)
		s.failLocked("worker exited")
		s.mu.Unlock()
		return nil, fmt.Errorf("send request: %w", err)
	}
	s.mu.Unlock()

	deadline := time.NewTimer(timeout + killGrace)
	defer deadline.Stop()

	select {
	case resp := <-ch:
		return &resp, nil
	case <-deadline.C:
		// The worker did not even manage to time the snippet out itself;
		// it is not coming back.
		s.abandon(req.ID)
		return nil, errDeadline
	case <-ctx.Done():
		s.abandon(req.ID)
		return nil, ctx.Err()
	}
}

func (s *Session) spawnLocked() error {
	cmd := exec.Command(s.cfg.Bin, s.cfg.Args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", errSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", errSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", errSpawn, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.enc = json.NewEncoder(stdin)
	s.pending = make(map[uint64]chan response)
	s.state = stateRunning
	s.logger.Info("worker started", "pid", cmd.Process.Pid)

	go s.read(cmd, json.NewDecoder(stdout))
	return nil
}

// read pumps responses off the worker's stdout and resolves the matching
// pending calls. When the stream ends the process is gone: every call
// still in flight resolves as an internal failure and the session goes
// dead until the next spawn.
func (s *Session) read(cmd *exec.Cmd, dec *json.Decoder) {
	for {
		var resp response
		if err := dec.Decode(&resp); err != nil {
			break
		}
		s.mu.Lock()
		if ch, ok := s.pending[resp.ID]; ok {
			delete(s.pending, resp.ID)
			ch <- resp
		}
		s.mu.Unlock()
	}
	_ = cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd && s.state == stateRunning {
		s.logger.Warn("worker exited", "pid", cmd.Process.Pid)
		s.failLocked("worker exited")
	}
	s.mu.Unlock()
}

// failLocked marks the session dead and resolves all pending calls as
// internal failures.
func (s *Session) failLocked(msg string) {
	s.state = stateDead
	for id, ch := range s.pending {
		ch <- response{ID: id, Error: msg}
		delete(s.pending, id)
	}
}

// abandon gives up on one in-flight request and kills the worker; the
// session respawns on the next call.
func (s *Session) abandon(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	if s.state == stateRunning {
		s.state = stateDead
		s.killLocked()
	}
}

func (s *Session) killLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
}
