package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	language "github.com/hanpama/graphcms/internal/language"
	schema "github.com/hanpama/graphcms/internal/schema"
)

func coerceVariableValues(s *schema.Schema, operation *language.OperationDefinition, values map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		name := def.Variable
		val, ok := values[name]
		if !ok {
			switch {
			case def.DefaultValue != nil:
				val = valueFromAST(def.DefaultValue, nil)
			case def.Type.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, def.Type.String())
			default:
				continue
			}
		}
		cv, err := coerceValue(s, val, typeRefFromAST(def.Type))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s: %w", name, def.Type.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

func coerceArgumentValues(s *schema.Schema, def *schema.Field, arguments language.ArgumentList, variables map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(def.Arguments))
	for _, argDef := range def.Arguments {
		arg := arguments.ForName(argDef.Name)
		var (
			val     any
			present bool
		)
		if arg != nil {
			if arg.Value.Kind == language.Variable {
				val, present = variables[arg.Value.Raw]
			} else {
				val, present = valueFromAST(arg.Value, variables), true
			}
		}
		if !present {
			if argDef.DefaultValue != nil {
				val, present = argDef.DefaultValue, true
			} else if argDef.Type.IsNonNull() {
				return nil, fmt.Errorf("argument %q of required type %s was not provided", argDef.Name, argDef.Type)
			} else {
				continue
			}
		}
		cv, err := coerceValue(s, val, argDef.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", argDef.Name, err)
		}
		coerced[argDef.Name] = cv
	}
	return coerced, nil
}

// valueFromAST converts a literal to a Go value, substituting variables at
// any depth.
func valueFromAST(value *language.Value, variables map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		return variables[value.Raw]
	case language.IntValue:
		if n, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
			return n
		}
		return nil
	case language.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromAST(c.Value, variables)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, c := range value.Children {
			out[c.Name] = valueFromAST(c.Value, variables)
		}
		return out
	default:
		return nil
	}
}

// coerceValue applies input coercion for t. Custom scalars pass through.
func coerceValue(s *schema.Schema, value any, t *schema.TypeRef) (any, error) {
	if t.IsNonNull() {
		if isNullish(value) {
			return nil, fmt.Errorf("null given for non-null type %s", t)
		}
		return coerceValue(s, value, t.OfType)
	}
	if isNullish(value) {
		return nil, nil
	}
	if t.Kind == schema.TypeRefKindList {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			item, err := coerceValue(s, value, t.OfType)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			item, err := coerceValue(s, rv.Index(i).Interface(), t.OfType)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	}

	switch t.Named {
	case "Int":
		return coerceInt(value)
	case "Float":
		return coerceFloat(value)
	case "String":
		if v, ok := value.(string); ok {
			return v, nil
		}
		return nil, fmt.Errorf("cannot use %v (%T) as String", value, value)
	case "Boolean":
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return nil, fmt.Errorf("cannot use %v (%T) as Boolean", value, value)
	case "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case int, int32, int64:
			return fmt.Sprintf("%d", v), nil
		case float64:
			if v == math.Trunc(v) {
				return strconv.FormatInt(int64(v), 10), nil
			}
		}
		return nil, fmt.Errorf("cannot use %v (%T) as ID", value, value)
	}

	typ := s.Types[t.Named]
	if typ == nil {
		return value, nil
	}
	switch typ.Kind {
	case schema.TypeKindEnum:
		name, ok := value.(string)
		if ok {
			for _, ev := range typ.EnumValues {
				if ev.Name == name {
					return name, nil
				}
			}
		}
		return nil, fmt.Errorf("%v is not a value of enum %s", value, typ.Name)
	case schema.TypeKindInputObject:
		return coerceInputObject(s, typ, value)
	default:
		return value, nil
	}
}

func coerceInputObject(s *schema.Schema, typ *schema.Type, value any) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot use %T as input object %s", value, typ.Name)
	}
	out := make(map[string]any, len(typ.InputFields))
	known := make(map[string]bool, len(typ.InputFields))
	for _, f := range typ.InputFields {
		known[f.Name] = true
		v, ok := in[f.Name]
		if !ok {
			if f.DefaultValue != nil {
				v = f.DefaultValue
			} else if f.Type.IsNonNull() {
				return nil, fmt.Errorf("field %s.%s of required type %s was not provided", typ.Name, f.Name, f.Type)
			} else {
				continue
			}
		}
		cv, err := coerceValue(s, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typ.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	for name := range in {
		if !known[name] {
			return nil, fmt.Errorf("field %q is not defined by input object %s", name, typ.Name)
		}
	}
	return out, nil
}

func coerceInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("cannot use non-integer %v as Int", v)
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("cannot use %s as Int", v)
		}
		n = i
	default:
		return nil, fmt.Errorf("cannot use %v (%T) as Int", value, value)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("%d overflows Int", n)
	}
	return int(n), nil
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return nil, fmt.Errorf("cannot use %v (%T) as Float", value, value)
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	var ref *schema.TypeRef
	if t.Elem != nil {
		ref = schema.ListType(typeRefFromAST(t.Elem))
	} else {
		ref = schema.NamedType(t.NamedType)
	}
	if t.NonNull {
		return schema.NonNullType(ref)
	}
	return ref
}
