package engine

// FailureKind partitions evaluation failures by where they originated.
type FailureKind string

const (
	// FailureSyntax means the snippet could not be parsed.
	FailureSyntax FailureKind = "syntax"
	// FailureRuntime means execution threw, including rejected promises.
	FailureRuntime FailureKind = "runtime"
	// FailureTimeout means the wall-clock deadline elapsed before completion.
	FailureTimeout FailureKind = "timeout"
	// FailureInternal covers engine and worker faults that are not the
	// snippet's doing.
	FailureInternal FailureKind = "internal"
)

// Failure describes why an evaluation did not produce a value.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Result is the outcome of one evaluation. Failure nil means success; the
// value fields are meaningful only then. Console always reflects the
// current call only.
type Result struct {
	// Value is the exported Go representation of the produced value. It may
	// be nil when the value does not survive export (functions) or JSON
	// transport; Rendered is always authoritative for display.
	Value any `json:"value,omitempty"`
	// Rendered is the bounded human-readable rendering of the value.
	Rendered string `json:"rendered"`
	// Type is the JavaScript typeof of the produced value.
	Type string `json:"type,omitempty"`
	// FromStatement marks results of statements and fresh declarations,
	// which complete with undefined rather than producing a value.
	FromStatement bool     `json:"fromStatement,omitempty"`
	Console       []string `json:"console,omitempty"`
	Failure       *Failure `json:"failure,omitempty"`
}

// OK reports whether the evaluation succeeded.
func (r *Result) OK() bool {
	return r.Failure == nil
}

func failed(kind FailureKind, message string) *Result {
	return &Result{Failure: &Failure{Kind: kind, Message: message}}
}

func undefinedResult(fromStatement bool) *Result {
	return &Result{Rendered: "undefined", Type: "undefined", FromStatement: fromStatement}
}
