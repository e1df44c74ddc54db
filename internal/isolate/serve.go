package isolate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sakif/lineval/internal/engine"
)

// workerContextID names the single context a worker hosts. The context id
// namespace is the host's concern; inside a worker there is exactly one.
const workerContextID = "worker"

// Serve runs the worker side of the protocol until r is closed. Each
// worker hosts one persistent evaluation context; killing the process is
// how the host discards it.
func Serve(r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	eng := engine.New(engine.Options{MaxContexts: 1}, logger)
	defer eng.Close()

	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		resp := response{ID: req.ID}
		switch req.Action {
		case actionEval:
			timeout := time.Duration(req.TimeoutMs) * time.Millisecond
			res, err := eng.Evaluate(context.Background(), workerContextID, req.Code, timeout)
			if err != nil {
				resp.Error = err.Error()
			} else {
				sanitizeValue(res)
				resp.OK = res.OK()
				resp.Result = res
			}
		case actionReset:
			if err := eng.Reset(workerContextID); err != nil {
				resp.Error = err.Error()
			} else {
				resp.OK = true
			}
		default:
			resp.Error = fmt.Sprintf("unknown action %q", req.Action)
		}

		if err := enc.Encode(&resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}

// sanitizeValue drops a result value that would not survive JSON encoding;
// Rendered stays authoritative either way.
func sanitizeValue(res *engine.Result) {
	if res.Value == nil {
		return
	}
	if _, err := json.Marshal(res.Value); err != nil {
		res.Value = nil
	}
}
