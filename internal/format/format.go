// Package format renders evaluated JavaScript values as bounded,
// human-readable text. It is pure: no panics escape, output length is
// capped, and reference cycles are detected instead of recursed into.
package format

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxLength is the rendering cap used when callers pass a
// non-positive maxLength.
const DefaultMaxLength = 200

const (
	ellipsis       = "..."
	circularMarker = "[Circular]"
	badValueMarker = "[unserializable value]"
)

// Undefined is the sentinel for the JavaScript undefined value. The engine
// passes it explicitly because goja exports both undefined and null as nil.
var Undefined = undefined{}

type undefined struct{}

// Func describes a function value. goja strips the name when exporting, so
// the engine extracts it from the object before formatting.
type Func struct {
	Name string
}

// Value renders v into at most maxLength characters. It never panics;
// values that cannot be serialized degrade to a placeholder.
func Value(v any, maxLength int) (out string) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	defer func() {
		if r := recover(); r != nil {
			out = truncate(badValueMarker, maxLength)
		}
	}()

	p := &printer{max: maxLength + len(ellipsis), seen: make(map[uintptr]struct{})}
	p.value(v)
	return truncate(p.b.String(), maxLength)
}

// printer accumulates output and stops descending once the budget is spent.
// The budget is slightly above maxLength so the final truncation decides
// where the ellipsis lands.
type printer struct {
	b    strings.Builder
	max  int
	seen map[uintptr]struct{}
}

func (p *printer) full() bool {
	return p.b.Len() >= p.max
}

func (p *printer) write(s string) {
	if !p.full() {
		p.b.WriteString(s)
	}
}

func (p *printer) value(v any) {
	if p.full() {
		return
	}
	switch t := v.(type) {
	case nil:
		p.write("null")
	case undefined:
		p.write("undefined")
	case Func:
		name := t.Name
		if name == "" {
			name = "anonymous"
		}
		p.write("[Function: " + name + "]")
	case error:
		p.write(t.Error())
	case bool:
		p.write(strconv.FormatBool(t))
	case string:
		p.write(strconv.Quote(t))
	case int64:
		p.write(strconv.FormatInt(t, 10))
	case float64:
		p.write(formatNumber(t))
	case time.Time:
		p.write(t.UTC().Format(time.RFC3339Nano))
	case []any:
		p.slice(t)
	case map[string]any:
		p.object(t)
	default:
		p.reflected(v)
	}
}

func (p *printer) slice(s []any) {
	if p.revisit(reflect.ValueOf(s).Pointer()) {
		return
	}
	p.write("[")
	for i, el := range s {
		if p.full() {
			return
		}
		if i > 0 {
			p.write(", ")
		}
		p.value(el)
	}
	p.write("]")
}

func (p *printer) object(m map[string]any) {
	if p.revisit(reflect.ValueOf(m).Pointer()) {
		return
	}
	// goja exports objects as Go maps, losing insertion order; sort keys so
	// renderings are stable.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.write("{")
	for i, k := range keys {
		if p.full() {
			return
		}
		if i > 0 {
			p.write(", ")
		}
		p.write(k + ": ")
		p.value(m[k])
	}
	p.write("}")
}

// revisit reports whether the referenced object was already serialized in
// this pass, writing the circular marker if so. Entries are not cleared on
// exit: a second encounter anywhere in the same pass is marked, which is
// what breaks self-referential structures.
func (p *printer) revisit(ptr uintptr) bool {
	if _, ok := p.seen[ptr]; ok {
		p.write(circularMarker)
		return true
	}
	p.seen[ptr] = struct{}{}
	return false
}

// reflected handles value kinds that goja does not normally export (typed
// slices and maps from host functions, pointers, structs).
func (p *printer) reflected(v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		p.write(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		p.write(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32:
		p.write(formatNumber(rv.Float()))
	case reflect.Func:
		p.write("[Function: anonymous]")
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			p.write("null")
			return
		}
		if rv.Kind() == reflect.Ptr && p.revisit(rv.Pointer()) {
			return
		}
		p.value(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && p.revisit(rv.Pointer()) {
			return
		}
		p.write("[")
		for i := 0; i < rv.Len(); i++ {
			if p.full() {
				return
			}
			if i > 0 {
				p.write(", ")
			}
			p.value(rv.Index(i).Interface())
		}
		p.write("]")
	case reflect.Map:
		if p.revisit(rv.Pointer()) {
			return
		}
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]reflect.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			s := fmt.Sprint(k.Interface())
			keys = append(keys, s)
			byKey[s] = rv.MapIndex(k)
		}
		sort.Strings(keys)
		p.write("{")
		for i, k := range keys {
			if p.full() {
				return
			}
			if i > 0 {
				p.write(", ")
			}
			p.write(k + ": ")
			p.value(byKey[k].Interface())
		}
		p.write("}")
	default:
		p.write(fmt.Sprint(v))
	}
}

// formatNumber renders floats the way JavaScript does: integral values
// without a fractional part.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// truncate caps s at max runes, appending an ellipsis when anything was
// cut. Rune-based so multi-byte characters are never split.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	return string(runes[:max-len(ellipsis)]) + ellipsis
}
