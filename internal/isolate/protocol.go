// Package isolate runs evaluations in dedicated worker processes, one per
// context, so a hostile or runaway snippet can be killed without touching
// the host. The host and worker speak newline-delimited JSON over the
// worker's stdin/stdout, correlated by a per-session monotonic id.
package isolate

import "github.com/sakif/lineval/internal/engine"

const (
	actionEval  = "eval"
	actionReset = "reset"
)

type request struct {
	ID        uint64 `json:"id"`
	Action    string `json:"action"`
	Code      string `json:"code,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

type response struct {
	ID uint64 `json:"id"`
	OK bool   `json:"ok"`
	// Result is present for eval responses, success or snippet failure
	// alike. Error is reserved for faults of the worker itself.
	Result *engine.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}
