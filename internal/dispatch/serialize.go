package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/schema"
)

func (r *Runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	value = registry.Unwrap(value)
	if value == nil {
		return nil, nil
	}
	switch typeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String":
		return serializeString(value)
	case "ID":
		if n, err := serializeInt(value); err == nil {
			return strconv.FormatInt(n.(int64), 10), nil
		}
		return serializeString(value)
	case "Boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("Boolean cannot represent %T", value)
		}
		return b, nil
	case "JSON":
		return serializeJSON(value)
	case "DateTime":
		return serializeDateTime(value)
	}
	if t, ok := r.schema.Type(typeName); ok && t.Kind == schema.TypeKindEnum {
		return serializeEnum(t, value)
	}
	return value, nil
}

func serializeInt(v any) (any, error) {
	rv := reflect.ValueOf(v)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent %v", v)
		}
		n = int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("Int cannot represent non-integer value %v", v)
		}
		n = int64(f)
	default:
		if num, ok := v.(json.Number); ok {
			i, err := num.Int64()
			if err != nil {
				return nil, fmt.Errorf("Int cannot represent %v", v)
			}
			n = i
			break
		}
		return nil, fmt.Errorf("Int cannot represent %T", v)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent %d: out of 32-bit range", n)
	}
	return n, nil
}

func serializeFloat(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	if num, ok := v.(json.Number); ok {
		return num.Float64()
	}
	return nil, fmt.Errorf("Float cannot represent %T", v)
}

func serializeString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case []byte:
		return string(s), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case reflect.String:
		return rv.String(), nil
	}
	return nil, fmt.Errorf("String cannot represent %T", v)
}

// serializeJSON passes plain JSON trees through. Anything else round-trips
// through encoding/json so the result is always JSON safe.
func serializeJSON(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any, string, bool, float64, int, int64, json.Number:
		return stripCapabilities(v), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("JSON cannot represent %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stripCapabilities(v any) any {
	switch t := v.(type) {
	case *registry.Capability:
		return stripCapabilities(t.Value)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = stripCapabilities(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stripCapabilities(e)
		}
		return out
	}
	return v
}

func serializeDateTime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case string:
		if _, err := time.Parse(time.RFC3339Nano, t); err != nil {
			return nil, fmt.Errorf("DateTime cannot represent %q", t)
		}
		return t, nil
	case int64:
		return time.UnixMilli(t).UTC().Format(time.RFC3339Nano), nil
	}
	return nil, fmt.Errorf("DateTime cannot represent %T", v)
}

func serializeEnum(t *schema.Type, v any) (any, error) {
	var name string
	switch s := v.(type) {
	case string:
		name = s
	case fmt.Stringer:
		name = s.String()
	default:
		return nil, fmt.Errorf("enum %s cannot represent %T", t.Name, v)
	}
	for _, ev := range t.EnumValues {
		if ev.Name == name {
			return name, nil
		}
	}
	return nil, fmt.Errorf("enum %s has no value %q", t.Name, name)
}
