package engine

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// allowedGlobals is the set of globals a fresh context scope exposes:
// language built-ins only. Everything else on the runtime's global object
// is removed before the first snippet runs, so `typeof process`,
// `typeof require` and friends evaluate to "undefined". eval and Function
// are deliberately absent.
var allowedGlobals = []string{
	"Object", "Array", "String", "Number", "Boolean", "Symbol", "BigInt",
	"Math", "JSON", "Date", "RegExp",
	"Error", "TypeError", "RangeError", "ReferenceError", "SyntaxError",
	"EvalError", "URIError", "AggregateError",
	"Map", "Set", "WeakMap", "WeakSet", "WeakRef",
	"Promise", "Proxy", "Reflect",
	"ArrayBuffer", "DataView",
	"Int8Array", "Uint8Array", "Uint8ClampedArray",
	"Int16Array", "Uint16Array", "Int32Array", "Uint32Array",
	"Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"decodeURI", "decodeURIComponent", "encodeURI", "encodeURIComponent",
	"NaN", "Infinity", "undefined", "globalThis",
	"console",
}

// hardenTemplate strips the global object down to the allow-list and cuts
// off dynamic code construction through the prototype chain (the
// `[].constructor.constructor` route survives deleting the Function global
// otherwise).
const hardenTemplate = `(function(allowed) {
	var names = Object.getOwnPropertyNames(this);
	for (var i = 0; i < names.length; i++) {
		if (!allowed[names[i]]) {
			delete this[names[i]];
		}
	}
	var samples = [function() {}, async function() {}, function* () {}];
	for (var j = 0; j < samples.length; j++) {
		delete Object.getPrototypeOf(samples[j]).constructor;
	}
}).call(this, %s);`

// newSandboxRuntime builds a goja runtime with the allow-list scope
// applied. The console object is installed separately, per context.
func newSandboxRuntime() (*goja.Runtime, error) {
	allowed := make(map[string]bool, len(allowedGlobals))
	for _, name := range allowedGlobals {
		allowed[name] = true
	}
	literal, err := json.Marshal(allowed)
	if err != nil {
		return nil, fmt.Errorf("encode allow-list: %w", err)
	}

	vm := goja.New()
	if _, err := vm.RunString(fmt.Sprintf(hardenTemplate, literal)); err != nil {
		return nil, fmt.Errorf("harden scope: %w", err)
	}
	return vm, nil
}
