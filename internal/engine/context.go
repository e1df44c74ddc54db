package engine

import (
	"container/list"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/sakif/lineval/internal/classify"
	"github.com/sakif/lineval/internal/format"
)

// Context is one persistent evaluation scope. All state lives in the goja
// runtime; declared tracks which top-level names this context has bound so
// a redeclaration can be demoted to an assignment instead of throwing.
type Context struct {
	id       string
	vm       *goja.Runtime
	declared map[string]struct{}
	console  []string
	// maxRender is atomic because SetLimits writes it while an evaluation
	// goroutine may be rendering.
	maxRender atomic.Int64

	// registry bookkeeping, guarded by the engine mutex
	elem *list.Element
	busy bool
}

func newContext(id string, maxRender int) (*Context, error) {
	c := &Context{
		id:       id,
		declared: make(map[string]struct{}),
	}
	c.maxRender.Store(int64(maxRender))
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) renderLimit() int {
	return int(c.maxRender.Load())
}

// rebuild replaces the runtime with a fresh hardened one, dropping all
// accumulated state.
func (c *Context) rebuild() error {
	vm, err := newSandboxRuntime()
	if err != nil {
		return err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, c.captureConsole); err != nil {
			return fmt.Errorf("install console.%s: %w", level, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("install console: %w", err)
	}

	c.vm = vm
	c.declared = make(map[string]struct{})
	c.console = nil
	return nil
}

// captureConsole backs every console level. Arguments are joined with a
// space; strings are emitted raw, everything else goes through the
// formatter.
func (c *Context) captureConsole(call goja.FunctionCall) goja.Value {
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		if s, ok := arg.Export().(string); ok {
			parts = append(parts, s)
			continue
		}
		val, _ := describe(arg)
		parts = append(parts, format.Value(val, c.renderLimit()))
	}
	c.console = append(c.console, strings.Join(parts, " "))
	return goja.Undefined()
}

func (c *Context) anyDeclared(names []string) bool {
	for _, name := range names {
		if _, ok := c.declared[name]; ok {
			return true
		}
	}
	return false
}

func (c *Context) registerNames(names []string) {
	for _, name := range names {
		c.declared[name] = struct{}{}
	}
}

// evalOnce runs one classified snippet to completion. It is called on the
// engine's evaluation goroutine and may be cut short by a runtime
// interrupt, which surfaces here as a Timeout failure.
func (c *Context) evalOnce(code string) *Result {
	info := classify.Classify(code)
	switch info.Kind {
	case classify.Declaration:
		if c.anyDeclared(info.BoundNames) {
			// Re-entered declaration: run it as an assignment so the
			// context updates in place. The assigned value surfaces like
			// an expression result.
			rewritten, ok := classify.RewriteAssignment(code, info)
			if !ok {
				return failed(FailureInternal, "declaration rewrite failed")
			}
			v, err := c.vm.RunString(rewritten)
			if err != nil {
				return c.failureFrom(err)
			}
			c.registerNames(info.BoundNames)
			return c.valueResult(v)
		}
		// Fresh declaration: run it demoted (const/let become var) so the
		// binding stays writable for later redeclarations of the same name.
		runnable, ok := classify.Demote(code, info)
		if !ok {
			runnable = code
		}
		if _, err := c.vm.RunString(runnable); err != nil {
			// Names are registered only on success, so a throwing
			// initializer can be retried as a declaration.
			return c.failureFrom(err)
		}
		c.registerNames(info.BoundNames)
		return undefinedResult(true)

	case classify.Expression:
		v, err := c.vm.RunString(code)
		if err != nil {
			return c.failureFrom(err)
		}
		return c.valueResult(v)

	default:
		if _, err := c.vm.RunString(code); err != nil {
			return c.failureFrom(err)
		}
		return undefinedResult(true)
	}
}

// valueResult builds a success result, unwrapping already-settled
// promises: microtasks are drained before RunString returns, so a promise
// still pending here can never settle (no timers in the sandbox).
func (c *Context) valueResult(v goja.Value) *Result {
	if v != nil {
		if p, ok := v.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				return c.valueResult(p.Result())
			case goja.PromiseStateRejected:
				return failed(FailureRuntime, c.renderThrown(p.Result()))
			default:
				return &Result{Rendered: "Promise { <pending> }", Type: "object"}
			}
		}
	}

	val, typ := describe(v)
	res := &Result{
		Rendered: format.Value(val, c.renderLimit()),
		Type:     typ,
	}
	if transportable(val) {
		res.Value = val
	}
	return res
}

func (c *Context) failureFrom(err error) *Result {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return failed(FailureTimeout, "evaluation timed out")
	}
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return failed(FailureSyntax, strings.TrimSpace(syntaxErr.Error()))
	}
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		return failed(FailureRuntime, c.renderThrown(jsErr.Value()))
	}
	return failed(FailureInternal, err.Error())
}

// renderThrown renders a thrown value or rejection reason as
// "Name: message" for Error instances, or through the formatter otherwise.
func (c *Context) renderThrown(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		msg := obj.Get("message")
		name := obj.Get("name")
		if msg != nil && !goja.IsUndefined(msg) && name != nil && !goja.IsUndefined(name) {
			return name.String() + ": " + msg.String()
		}
	}
	val, _ := describe(v)
	return format.Value(val, c.renderLimit())
}

// describe maps a goja value to a formatter-ready Go value and its
// JavaScript typeof.
func describe(v goja.Value) (any, string) {
	if v == nil || goja.IsUndefined(v) {
		return format.Undefined, "undefined"
	}
	if goja.IsNull(v) {
		return nil, "object"
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Function" {
		name := ""
		if nv := obj.Get("name"); nv != nil && !goja.IsUndefined(nv) {
			name = nv.String()
		}
		return format.Func{Name: name}, "function"
	}

	exported := v.Export()
	switch exported.(type) {
	case string:
		return exported, "string"
	case bool:
		return exported, "boolean"
	case int64, float64:
		return exported, "number"
	default:
		return exported, "object"
	}
}

// transportable reports whether val survives JSON transport unchanged; the
// Result.Value field carries only such values.
func transportable(val any) bool {
	switch val.(type) {
	case nil, string, bool, int64, float64, []any, map[string]any:
		return true
	default:
		return false
	}
}
