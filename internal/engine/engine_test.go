package engine_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/lineval/internal/engine"
)

func newTestEngine(t *testing.T, opts engine.Options) *engine.Engine {
	t.Helper()
	e := engine.New(opts, nil)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func eval(t *testing.T, e *engine.Engine, id, code string) *engine.Result {
	t.Helper()
	res, err := e.Evaluate(context.Background(), id, code, 0)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestEvaluate_IncrementalSession(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "let a = 1")
	require.Nil(t, res.Failure)
	assert.True(t, res.FromStatement)
	assert.Equal(t, "undefined", res.Rendered)

	res = eval(t, e, "doc", "let b = 2")
	require.Nil(t, res.Failure)
	assert.True(t, res.FromStatement)

	res = eval(t, e, "doc", "a + b")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(3), res.Value)
	assert.Equal(t, "3", res.Rendered)
	assert.Equal(t, "number", res.Type)
	assert.False(t, res.FromStatement)
}

func TestEvaluate_ArrayState(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const arr = [1, 2, 3]")
	require.Nil(t, res.Failure)

	res = eval(t, e, "doc", "arr.map(x => x * 2)")
	require.Nil(t, res.Failure)
	assert.Equal(t, "[2, 4, 6]", res.Rendered)
	assert.Equal(t, "object", res.Type)
}

func TestEvaluate_RedeclarationBecomesAssignment(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const a = 5")
	require.Nil(t, res.Failure)
	assert.True(t, res.FromStatement)

	// Re-running the same const in a plain runtime would throw; here it
	// updates the binding and surfaces the assigned value.
	res = eval(t, e, "doc", "const a = 6")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(6), res.Value)
	assert.False(t, res.FromStatement)

	res = eval(t, e, "doc", "a")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(6), res.Value)
}

func TestEvaluate_DestructuredRedeclaration(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const {x, y} = {x: 1, y: 2}")
	require.Nil(t, res.Failure)

	res = eval(t, e, "doc", "const {x, y} = {x: 10, y: 20}")
	require.Nil(t, res.Failure)

	res = eval(t, e, "doc", "x + y")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(30), res.Value)
}

func TestEvaluate_FunctionRedeclaration(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "function double(n) { return n * 2 }")
	require.Nil(t, res.Failure)

	res = eval(t, e, "doc", "function double(n) { return n * 3 }")
	require.Nil(t, res.Failure)
	assert.Equal(t, "function", res.Type)

	res = eval(t, e, "doc", "double(7)")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(21), res.Value)
}

func TestEvaluate_FailedDeclarationNotRegistered(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const z = boom()")
	require.NotNil(t, res.Failure)
	assert.Equal(t, engine.FailureRuntime, res.Failure.Kind)

	// z was never bound, so this must run as a fresh declaration, not as
	// an assignment to a missing lexical binding.
	res = eval(t, e, "doc", "const z = 1")
	require.Nil(t, res.Failure)
	assert.True(t, res.FromStatement)

	res = eval(t, e, "doc", "z")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(1), res.Value)
}

func TestEvaluate_FailureKinds(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const = ;;")
	require.NotNil(t, res.Failure)
	assert.Equal(t, engine.FailureSyntax, res.Failure.Kind)

	res = eval(t, e, "doc", "nope()")
	require.NotNil(t, res.Failure)
	assert.Equal(t, engine.FailureRuntime, res.Failure.Kind)
	assert.Contains(t, res.Failure.Message, "ReferenceError")
}

func TestEvaluate_ConsoleCapture(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "console.log('sum', 1 + 2)")
	require.Nil(t, res.Failure)
	assert.Equal(t, []string{"sum 3"}, res.Console)

	lines, ok := e.PeekConsole("doc")
	assert.True(t, ok)
	assert.Equal(t, []string{"sum 3"}, lines)

	// The buffer reflects the current call only.
	res = eval(t, e, "doc", "1 + 1")
	require.Nil(t, res.Failure)
	assert.Empty(t, res.Console)

	lines, ok = e.PeekConsole("doc")
	assert.True(t, ok)
	assert.Empty(t, lines)
}

func TestEvaluate_ConsoleCapturedOnFailure(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "console.log('before'); boom()")
	require.NotNil(t, res.Failure)
	assert.Equal(t, []string{"before"}, res.Console)
}

func TestEvaluate_ContextIsolation(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "one", "let secret = 41")
	require.Nil(t, res.Failure)

	res = eval(t, e, "two", "typeof secret")
	require.Nil(t, res.Failure)
	assert.Equal(t, "undefined", res.Value)
}

func TestEvaluate_SandboxedGlobals(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	for _, name := range []string{"process", "require", "global", "eval", "Function", "setTimeout"} {
		res := eval(t, e, "doc", "typeof "+name)
		require.Nil(t, res.Failure, name)
		assert.Equal(t, "undefined", res.Value, name)
	}

	// The constructor escape hatch is cut off too.
	res := eval(t, e, "doc", "typeof [].constructor.constructor")
	require.Nil(t, res.Failure)
	assert.Equal(t, "undefined", res.Value)
}

func TestEvaluate_Timeout(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	start := time.Now()
	res, err := e.Evaluate(context.Background(), "doc", "while (true) {}", 100*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, engine.FailureTimeout, res.Failure.Kind)
	assert.Less(t, elapsed, 2*time.Second)

	// The context survives the interrupt.
	res = eval(t, e, "doc", "1 + 1")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(2), res.Value)
}

func TestEvaluate_Promises(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "Promise.resolve(42)")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(42), res.Value)

	res = eval(t, e, "doc", "Promise.reject(new Error('nope'))")
	require.NotNil(t, res.Failure)
	assert.Equal(t, engine.FailureRuntime, res.Failure.Kind)
	assert.Contains(t, res.Failure.Message, "nope")

	// Without timers nothing can settle this later, so pending is final.
	res = eval(t, e, "doc", "new Promise(() => {})")
	require.Nil(t, res.Failure)
	assert.Equal(t, "Promise { <pending> }", res.Rendered)
}

func TestEvaluate_EmptySnippet(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "   \n\t")
	require.Nil(t, res.Failure)
	assert.True(t, res.FromStatement)
	assert.Equal(t, "undefined", res.Rendered)
}

func TestEvaluate_StringRendering(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "'hi'")
	require.Nil(t, res.Failure)
	assert.Equal(t, `"hi"`, res.Rendered)
	assert.Equal(t, "string", res.Type)
	assert.Equal(t, "hi", res.Value)
}

func TestReset_ClearsStateKeepsContext(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const kept = 1")
	require.Nil(t, res.Failure)

	require.NoError(t, e.Reset("doc"))

	res = eval(t, e, "doc", "typeof kept")
	require.Nil(t, res.Failure)
	assert.Equal(t, "undefined", res.Value)

	// After reset the name can be declared fresh again.
	res = eval(t, e, "doc", "const kept = 2")
	require.Nil(t, res.Failure)
	assert.True(t, res.FromStatement)
}

func TestDispose_DropsContext(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	eval(t, e, "doc", "let v = 1")
	e.Dispose("doc")

	_, ok := e.PeekConsole("doc")
	assert.False(t, ok)

	res := eval(t, e, "doc", "typeof v")
	require.Nil(t, res.Failure)
	assert.Equal(t, "undefined", res.Value)
}

func TestEviction_LeastRecentlyUsed(t *testing.T) {
	e := newTestEngine(t, engine.Options{MaxContexts: 2})

	eval(t, e, "a", "let va = 1")
	eval(t, e, "b", "let vb = 1")
	// Touch a so b becomes the eviction candidate.
	eval(t, e, "a", "va")
	eval(t, e, "c", "let vc = 1")

	res := eval(t, e, "a", "typeof va")
	require.Nil(t, res.Failure)
	assert.Equal(t, "number", res.Value, "recently used context keeps its state")

	res = eval(t, e, "b", "typeof vb")
	require.Nil(t, res.Failure)
	assert.Equal(t, "undefined", res.Value, "evicted context comes back empty")
}

func TestSetLimits_ShrinksRegistry(t *testing.T) {
	e := newTestEngine(t, engine.Options{MaxContexts: 4})

	eval(t, e, "a", "1")
	eval(t, e, "b", "1")
	eval(t, e, "c", "1")

	e.SetLimits(engine.Options{MaxContexts: 1})

	_, okA := e.PeekConsole("a")
	_, okB := e.PeekConsole("b")
	_, okC := e.PeekConsole("c")
	kept := 0
	for _, ok := range []bool{okA, okB, okC} {
		if ok {
			kept++
		}
	}
	assert.Equal(t, 1, kept)
	assert.True(t, okC, "most recently used survives")
}

func TestEvaluate_BindingsStayWritable(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "const a = 5")
	require.Nil(t, res.Failure)

	// Session bindings are writable even when declared const, so a plain
	// assignment updates the value instead of throwing.
	res = eval(t, e, "doc", "a = 7")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(7), res.Value)

	res = eval(t, e, "doc", "a")
	require.Nil(t, res.Failure)
	assert.Equal(t, int64(7), res.Value)
}

func TestSetLimits_RenderLengthAppliesToLiveContexts(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	res := eval(t, e, "doc", "'x'.repeat(500)")
	require.Nil(t, res.Failure)
	assert.Len(t, res.Rendered, 200, "default cap applies")

	e.SetLimits(engine.Options{MaxRenderLength: 40})

	res = eval(t, e, "doc", "'x'.repeat(500)")
	require.Nil(t, res.Failure)
	assert.Len(t, res.Rendered, 40)
	assert.True(t, strings.HasSuffix(res.Rendered, "..."))
}

func TestSetLimits_SafeDuringEvaluation(t *testing.T) {
	e := newTestEngine(t, engine.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("ctx-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				res, err := e.Evaluate(context.Background(), id, "'y'.repeat(300)", time.Second)
				if err != nil {
					t.Errorf("evaluate: %v", err)
					return
				}
				if res.Failure != nil {
					t.Errorf("unexpected failure: %+v", res.Failure)
					return
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		e.SetLimits(engine.Options{MaxRenderLength: 50 + j})
	}
	wg.Wait()
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	e := engine.New(engine.Options{}, nil)
	require.NoError(t, e.Close())

	_, err := e.Evaluate(context.Background(), "doc", "1", 0)
	assert.ErrorIs(t, err, engine.ErrClosed)
}
