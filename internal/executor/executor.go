// Package executor defines the contract shared by the in-process engine and
// the out-of-process isolation tier, so the service layer can be wired to
// either at startup.
package executor

import (
	"context"
	"time"

	"github.com/sakif/lineval/internal/engine"
)

// Evaluator runs snippets against named persistent contexts. Callers must
// serialize calls per context id; calls for distinct ids may run
// concurrently.
type Evaluator interface {
	// Evaluate runs code in the context named by contextID, creating it on
	// first use. A non-positive timeout selects the configured default.
	Evaluate(ctx context.Context, contextID, code string, timeout time.Duration) (*engine.Result, error)

	// Reset discards the state of the context but keeps it registered.
	Reset(contextID string) error

	// Dispose removes the context and releases its resources. Unknown ids
	// are a no-op.
	Dispose(contextID string)

	// PeekConsole returns the console output captured by the most recent
	// evaluation in the context. ok is false for unknown ids.
	PeekConsole(contextID string) (lines []string, ok bool)

	// Close releases all contexts. The evaluator is unusable afterwards.
	Close() error
}
