// Package classify inspects a snippet of JavaScript source and decides how
// the engine should execute it: as a value-producing expression, as a
// declaration that binds names, or as a bare statement. Classification is
// purely syntactic (goja's parser, no execution) and never fails: input
// the parser cannot make sense of degrades to Statement, deferring the
// real success/failure call to execution.
package classify

import (
	"regexp"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// Kind is the execution strategy for a snippet.
type Kind int

const (
	// Expression evaluates to a value.
	Expression Kind = iota
	// Declaration binds one or more names with a const/let/var, function,
	// or class form.
	Declaration
	// Statement executes for its side effects only.
	Statement
)

func (k Kind) String() string {
	switch k {
	case Expression:
		return "expression"
	case Declaration:
		return "declaration"
	default:
		return "statement"
	}
}

// form records which declaration flavor matched, since the
// assignment rewrite differs between binding lists and function/class
// declarations.
type form int

const (
	formNone form = iota
	formBinding  // const/let/var
	formFunction // function f() {...} / class C {...}
)

// Info is the classification result. BoundNames is populated only for
// Declaration, flattened in declaration order: nested destructuring
// patterns are resolved recursively, defaulted sub-patterns contribute
// their target names, rest elements are included.
type Info struct {
	Kind       Kind
	BoundNames []string

	form form
}

// Classify parses code as a single top-level construct and classifies it.
func Classify(code string) Info {
	prog, err := parser.ParseFile(nil, "", code, 0)
	if err != nil {
		// Not parseable as a program; execution will report the real error.
		return Info{Kind: Statement}
	}
	if len(prog.Body) != 1 {
		return Info{Kind: Statement}
	}

	switch stmt := prog.Body[0].(type) {
	case *ast.VariableStatement:
		return bindingInfo(stmt.List)
	case *ast.LexicalDeclaration:
		return bindingInfo(stmt.List)
	case *ast.FunctionDeclaration:
		if stmt.Function.Name == nil {
			return Info{Kind: Statement}
		}
		return Info{
			Kind:       Declaration,
			BoundNames: []string{stmt.Function.Name.Name.String()},
			form:       formFunction,
		}
	case *ast.ClassDeclaration:
		if stmt.Class.Name == nil {
			return Info{Kind: Statement}
		}
		return Info{
			Kind:       Declaration,
			BoundNames: []string{stmt.Class.Name.Name.String()},
			form:       formFunction,
		}
	case *ast.ExpressionStatement:
		return Info{Kind: Expression}
	default:
		return Info{Kind: Statement}
	}
}

func bindingInfo(list []*ast.Binding) Info {
	info := Info{Kind: Declaration, form: formBinding}
	for _, b := range list {
		collectTarget(b.Target, &info)
	}
	if len(info.BoundNames) == 0 {
		// A binding list the walker could not resolve; treat as opaque.
		return Info{Kind: Statement}
	}
	return info
}

// collectTarget flattens a binding target (identifier or destructuring
// pattern) into info.BoundNames.
func collectTarget(target ast.Expression, info *Info) {
	switch t := target.(type) {
	case *ast.Identifier:
		info.BoundNames = append(info.BoundNames, t.Name.String())
	case *ast.ObjectPattern:
		for _, prop := range t.Properties {
			switch p := prop.(type) {
			case *ast.PropertyShort:
				// {a} and {a = default} both bind a.
				info.BoundNames = append(info.BoundNames, p.Name.Name.String())
			case *ast.PropertyKeyed:
				// {key: target}: the target side binds, possibly a
				// nested pattern or a defaulted target.
				collectTarget(p.Value, info)
			}
		}
		if t.Rest != nil {
			collectTarget(t.Rest, info)
		}
	case *ast.ArrayPattern:
		for _, el := range t.Elements {
			if el != nil { // nil is an elision: [, x]
				collectTarget(el, info)
			}
		}
		if t.Rest != nil {
			collectTarget(t.Rest, info)
		}
	case *ast.AssignExpression:
		// Defaulted element: [x = 1] or {a: x = 1}. The default itself is
		// irrelevant for binding purposes.
		collectTarget(t.Left, info)
	}
}

var declKeyword = regexp.MustCompile(`^(?:const|let|var)\s+`)

// Demote rewrites a const/let binding declaration to a var declaration.
// Contexts run fresh declarations in demoted form so that a later
// re-evaluation of the same snippet can assign over the binding; a true
// lexical binding would reject both redeclaration and, for const,
// assignment. Function and class declarations are returned unchanged
// (their bindings are already writable). ok is false for non-declarations.
func Demote(code string, info Info) (string, bool) {
	if info.Kind != Declaration {
		return "", false
	}
	if info.form != formBinding {
		return code, true
	}
	trimmed := strings.TrimSpace(code)
	if !declKeyword.MatchString(trimmed) {
		return code, true
	}
	return declKeyword.ReplaceAllString(trimmed, "var "), true
}

// RewriteAssignment turns a declaration snippet into a plain assignment
// expression for re-evaluation against a context that already declared the
// bound name(s). Returns ok=false when info does not describe a
// declaration. The transform is pure text: the declaration keyword is
// stripped (binding forms) or the name is assigned the declaration as an
// expression (function/class forms), and the result is parenthesized so
// destructuring targets parse as expressions rather than blocks.
func RewriteAssignment(code string, info Info) (string, bool) {
	if info.Kind != Declaration {
		return "", false
	}

	trimmed := strings.TrimSpace(code)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)

	switch info.form {
	case formBinding:
		stripped := declKeyword.ReplaceAllString(trimmed, "")
		return "(" + stripped + ")", true
	case formFunction:
		return info.BoundNames[0] + " = (" + trimmed + ")", true
	default:
		return "", false
	}
}
