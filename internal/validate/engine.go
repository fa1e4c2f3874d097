package validate

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hanpama/graphcms/internal/errs"
)

// Coercer converts a value the node's type would reject into one it accepts.
// It reports false when it has nothing to offer.
type Coercer func(n *Node, v any) (any, bool)

// Engine applies nodes to values. Coercers are looked up by the node's kind
// and run only when the value does not already fit.
type Engine struct {
	mu    sync.RWMutex
	kinds map[string]Coercer
}

// NewEngine returns an engine with the built-in kind coercions: a bare string
// given to an image or file list becomes a one element list, and a numeric
// string given to a number kind becomes a number.
func NewEngine() *Engine {
	e := &Engine{kinds: make(map[string]Coercer)}
	e.Extend(KindImage, singleToList)
	e.Extend(KindFile, singleToList)
	e.Extend(KindNumber, numericString)
	return e
}

// Extend registers c for kind, replacing any previous coercer.
func (e *Engine) Extend(kind string, c Coercer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds[kind] = c
}

func (e *Engine) coercer(kind string) Coercer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.kinds[kind]
}

func singleToList(n *Node, v any) (any, bool) {
	s, ok := v.(string)
	if !ok || n.Type != TypeArray {
		return nil, false
	}
	return []any{s}, true
}

func numericString(n *Node, v any) (any, bool) {
	s, ok := v.(string)
	if !ok || n.Type != TypeNumber {
		return nil, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

// Apply validates v against n and returns the coerced value.
func (e *Engine) Apply(n *Node, v any) (any, error) {
	var issues []errs.Issue
	out, _ := e.apply(n, v, v != nil, "", &issues)
	if len(issues) > 0 {
		return nil, &errs.ValidationError{Issues: issues}
	}
	return out, nil
}

// apply returns the coerced value and whether it is present in the output.
func (e *Engine) apply(n *Node, v any, present bool, path string, issues *[]errs.Issue) (any, bool) {
	fail := func(format string, args ...any) (any, bool) {
		*issues = append(*issues, errs.Issue{Path: path, Message: fmt.Sprintf(format, args...)})
		return nil, false
	}
	if !present || v == nil {
		switch {
		case n.Meta.Default != nil:
			return n.Meta.Default, true
		case n.Meta.Required:
			return fail("required")
		}
		return nil, false
	}

	var local []errs.Issue
	if out, ok := e.check(n, v, path, &local); ok {
		return out, true
	}
	if c := e.coercer(n.Meta.Kind); c != nil {
		if cv, ok := c(n, v); ok {
			var retry []errs.Issue
			if out, ok := e.check(n, cv, path, &retry); ok {
				return out, true
			}
			local = retry
		}
	}
	*issues = append(*issues, local...)
	return nil, false
}

// check validates the non-nil value v. It succeeds only if no issue was
// recorded.
func (e *Engine) check(n *Node, v any, path string, issues *[]errs.Issue) (any, bool) {
	fail := func(format string, args ...any) (any, bool) {
		*issues = append(*issues, errs.Issue{Path: path, Message: fmt.Sprintf(format, args...)})
		return nil, false
	}
	switch n.Type {
	case TypeAny, "":
		return v, true
	case TypeNever:
		return fail("no value is allowed")
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fail("expected string but got %s", describe(v))
		}
		if msg := bounds(n.Meta, float64(len([]rune(s))), "length"); msg != "" {
			return fail("%s", msg)
		}
		return s, true
	case TypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return fail("expected number but got %s", describe(v))
		}
		if msg := bounds(n.Meta, f, "value"); msg != "" {
			return fail("%s", msg)
		}
		return f, true
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return fail("expected boolean but got %s", describe(v))
		}
		return b, true
	case TypeConst:
		if !reflect.DeepEqual(normalize(v), normalize(n.Value)) {
			return fail("expected %v but got %v", n.Value, v)
		}
		return n.Value, true
	case TypeArray:
		return e.checkArray(n, v, path, issues)
	case TypeDict:
		return e.checkDict(n, v, path, issues)
	case TypeObject:
		return e.checkObject(n, v, path, issues)
	case TypeUnion:
		for _, alt := range n.List {
			var probe []errs.Issue
			if out, ok := e.apply(alt, v, true, path, &probe); ok && len(probe) == 0 {
				return out, true
			}
		}
		return fail("expected one of %d alternatives but got %s", len(n.List), describe(v))
	}
	return fail("unsupported definition type %q", n.Type)
}

func (e *Engine) checkArray(n *Node, v any, path string, issues *[]errs.Issue) (any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array || rv.Type().Elem().Kind() == reflect.Uint8 {
		*issues = append(*issues, errs.Issue{Path: path, Message: "expected array but got " + describe(v)})
		return nil, false
	}
	if msg := bounds(n.Meta, float64(rv.Len()), "length"); msg != "" {
		*issues = append(*issues, errs.Issue{Path: path, Message: msg})
		return nil, false
	}
	before := len(*issues)
	out := make([]any, rv.Len())
	for i := range out {
		elem, _ := e.apply(n.Inner, rv.Index(i).Interface(), true, join(path, strconv.Itoa(i)), issues)
		out[i] = elem
	}
	return out, len(*issues) == before
}

func (e *Engine) checkDict(n *Node, v any, path string, issues *[]errs.Issue) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		*issues = append(*issues, errs.Issue{Path: path, Message: "expected object but got " + describe(v)})
		return nil, false
	}
	before := len(*issues)
	out := make(map[string]any, len(m))
	for _, k := range sortedKeys(m) {
		if val, present := e.apply(n.Inner, m[k], true, join(path, k), issues); present {
			out[k] = val
		}
	}
	return out, len(*issues) == before
}

// checkObject keeps only the declared properties of nested objects.
func (e *Engine) checkObject(n *Node, v any, path string, issues *[]errs.Issue) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		*issues = append(*issues, errs.Issue{Path: path, Message: "expected object but got " + describe(v)})
		return nil, false
	}
	before := len(*issues)
	out := make(map[string]any, len(n.Dict))
	for _, k := range n.Keys() {
		val, has := m[k]
		if cv, present := e.apply(n.Dict[k], val, has, join(path, k), issues); present {
			out[k] = cv
		}
	}
	return out, len(*issues) == before
}

func bounds(m Meta, x float64, what string) string {
	if m.Min != nil && x < *m.Min {
		return fmt.Sprintf("%s %v is less than %v", what, x, *m.Min)
	}
	if m.Max != nil && x > *m.Max {
		return fmt.Sprintf("%s %v is greater than %v", what, x, *m.Max)
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
