package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/lineval/internal/classify"
)

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name string
		code string
		want classify.Kind
	}{
		{"arithmetic", "1 + 2", classify.Expression},
		{"call", "console.log('x')", classify.Expression},
		{"identifier", "a", classify.Expression},
		{"trailing semicolon", "1 + 2;", classify.Expression},
		{"const", "const a = 5", classify.Declaration},
		{"let no initializer", "let b", classify.Declaration},
		{"var", "var c = 1", classify.Declaration},
		{"function", "function f() { return 1 }", classify.Declaration},
		{"class", "class Point {}", classify.Declaration},
		{"if", "if (true) { 1 }", classify.Statement},
		{"for loop", "for (let i = 0; i < 3; i++) {}", classify.Statement},
		{"multiple statements", "let a = 1; a + 1", classify.Statement},
		{"unparseable", "const = ;;", classify.Statement},
		// A leading brace parses as a block, not an object literal.
		{"object-looking block", "{a: 1}", classify.Statement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify.Classify(tt.code).Kind)
		})
	}
}

func TestClassify_BoundNames(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []string
	}{
		{"single", "const a = 5", []string{"a"}},
		{"multi binding", "let a = 1, b = 2", []string{"a", "b"}},
		{"object pattern", "const {x, y} = p", []string{"x", "y"}},
		{"renamed key", "const {x: px} = p", []string{"px"}},
		{"defaults ignored", "const {x = 1, y = 2} = p", []string{"x", "y"}},
		{"array pattern", "const [first, second] = xs", []string{"first", "second"}},
		{"array elision", "const [, second] = xs", []string{"second"}},
		{"rest element", "const [head, ...tail] = xs", []string{"head", "tail"}},
		{"object rest", "const {a, ...rest} = o", []string{"a", "rest"}},
		{"nested patterns", "const {a: {b, c}, d: [e]} = o", []string{"b", "c", "e"}},
		{"function", "function double(n) { return n * 2 }", []string{"double"}},
		{"class", "class Point { constructor() {} }", []string{"Point"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := classify.Classify(tt.code)
			assert.Equal(t, classify.Declaration, info.Kind)
			assert.Equal(t, tt.want, info.BoundNames)
		})
	}
}

func TestRewriteAssignment(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"const", "const a = 5", "(a = 5)"},
		{"let with semicolon", "let b = 2;", "(b = 2)"},
		{"var", "var c = 10", "(c = 10)"},
		{"multi binding", "let a = 1, b = 2", "(a = 1, b = 2)"},
		{"object pattern", "const {x, y} = p", "({x, y} = p)"},
		{"array pattern", "const [a, b] = xs", "([a, b] = xs)"},
		{
			"function",
			"function double(n) { return n * 2 }",
			"double = (function double(n) { return n * 2 })",
		},
		{"class", "class Point {}", "Point = (class Point {})"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := classify.Classify(tt.code)
			got, ok := classify.RewriteAssignment(tt.code, info)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDemote(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"const", "const a = 5", "var a = 5"},
		{"let", "let b = 2", "var b = 2"},
		{"var unchanged", "var c = 1", "var c = 1"},
		{"destructuring", "const {x, y} = p", "var {x, y} = p"},
		{"function unchanged", "function f() {}", "function f() {}"},
		{"class unchanged", "class C {}", "class C {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classify.Demote(tt.code, classify.Classify(tt.code))
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteAssignment_NonDeclaration(t *testing.T) {
	info := classify.Classify("1 + 2")
	_, ok := classify.RewriteAssignment("1 + 2", info)
	assert.False(t, ok)
}
