package executor

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	language "github.com/hanpama/graphcms/internal/language"
	schema "github.com/hanpama/graphcms/internal/schema"
)

// frame is one enclosing position of a field in the response tree. It is
// used to find the nearest nullable ancestor when a non-null field fails
// after its parent has already been written.
type frame struct {
	path    Path
	nonNull bool
}

type asyncTask struct {
	task      AsyncResolveTask
	path      Path
	fieldType *schema.TypeRef
	fields    []*language.Field
	frames    []frame
}

type asyncPending struct{}

type executionState struct {
	ctx       context.Context
	runtime   Runtime
	schema    *schema.Schema
	document  *language.QueryDocument
	variables map[string]any
	pending   []asyncTask
	errors    []GraphQLError
	// serial is set for mutations: root fields are resolved one at a time.
	serial     bool
	tombstones map[string]struct{}
	dataNull   bool
}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// Schema returns the schema the executor was built for.
func (e *Executor) Schema() *schema.Schema { return e.schema }

func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation, err := selectOperation(document, operationName)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	vars, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query, "":
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	case language.Subscription:
		return &ExecutionResult{Errors: []GraphQLError{{Message: "subscriptions are not supported"}}}
	}
	if rootType == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("schema does not support %s operations", operation.Operation)}}}
	}

	state := &executionState{
		ctx:        ctx,
		runtime:    e.runtime,
		schema:     e.schema,
		document:   document,
		variables:  vars,
		errors:     []GraphQLError{},
		serial:     operation.Operation == language.Mutation,
		tombstones: make(map[string]struct{}),
	}

	data := state.executeSelectionSet(rootType, operation.SelectionSet, initialValue, Path{}, nil)
	for len(state.pending) > 0 && !state.dataNull && data != nil {
		batch := state.nextBatch()
		if len(batch) == 0 {
			continue
		}
		tasks := make([]AsyncResolveTask, len(batch))
		for i, at := range batch {
			tasks[i] = at.task
		}
		results := state.runtime.BatchResolveAsync(ctx, tasks)
		for i, at := range batch {
			res := AsyncResolveResult{Error: fmt.Errorf("runtime returned no result for %s.%s", at.task.ObjectType, at.task.Field)}
			if i < len(results) {
				res = results[i]
			}
			state.completeAsync(at, res, data)
		}
	}

	if data == nil || state.dataNull {
		return &ExecutionResult{Data: nil, Errors: state.errors}
	}
	return &ExecutionResult{Data: data, Errors: state.errors}
}

// nextBatch removes and returns the tasks to run next. Tasks under tombstoned
// paths are dropped. In serial mode nested tasks drain before the next root
// field starts.
func (s *executionState) nextBatch() []asyncTask {
	live := s.pending[:0:0]
	for _, at := range s.pending {
		if !s.dead(at.path) {
			live = append(live, at)
		}
	}
	s.pending = nil
	if !s.serial {
		return live
	}
	var nested, roots []asyncTask
	for _, at := range live {
		if len(at.path) == 1 {
			roots = append(roots, at)
		} else {
			nested = append(nested, at)
		}
	}
	if len(nested) > 0 {
		s.pending = roots
		return nested
	}
	if len(roots) == 0 {
		return nil
	}
	s.pending = roots[1:]
	return roots[:1]
}

func (s *executionState) executeSelectionSet(objectType *schema.Type, selectionSet language.SelectionSet, source any, path Path, frames []frame) map[string]any {
	groups := s.collectFields(objectType, selectionSet)
	out := make(map[string]any, len(groups))

	for _, g := range groups {
		fieldPath := appendPath(path, g.responseName)
		first := g.fields[0]
		if first.Name == "__typename" {
			out[g.responseName] = objectType.Name
			continue
		}
		def := objectType.Field(first.Name)
		if def == nil {
			s.errors = append(s.errors, fieldError(
				fmt.Errorf("cannot query field %q on type %q", first.Name, objectType.Name), fieldPath, g.fields))
			continue
		}

		v := s.executeField(objectType, def, source, g.fields, fieldPath, frames)
		if _, ok := v.(asyncPending); ok {
			out[g.responseName] = v
			continue
		}
		if isNullish(v) {
			if def.Type.IsNonNull() {
				s.nullAt(path)
				return nil
			}
			v = nil
		}
		out[g.responseName] = v
	}
	return out
}

func (s *executionState) executeField(objectType *schema.Type, def *schema.Field, source any, fields []*language.Field, path Path, frames []frame) any {
	args, err := coerceArgumentValues(s.schema, def, fields[0].Arguments, s.variables)
	if err != nil {
		s.errors = append(s.errors, fieldError(err, path, fields))
		return nil
	}

	if !def.Async {
		v, err := s.runtime.ResolveSync(s.ctx, objectType.Name, def.Name, source, args)
		if err != nil {
			s.errors = append(s.errors, fieldError(err, path, fields))
			return nil
		}
		return s.completeValue(def.Type, fields, v, path, frames)
	}

	s.pending = append(s.pending, asyncTask{
		task: AsyncResolveTask{
			ObjectType: objectType.Name,
			Field:      def.Name,
			Source:     source,
			Args:       args,
		},
		path:      path,
		fieldType: def.Type,
		fields:    fields,
		frames:    append([]frame(nil), frames...),
	})
	return asyncPending{}
}

func (s *executionState) completeAsync(at asyncTask, res AsyncResolveResult, data map[string]any) {
	if s.dead(at.path) {
		return
	}
	if res.Error != nil {
		s.errors = append(s.errors, fieldError(res.Error, at.path, at.fields))
		s.nullify(at, data)
		return
	}
	v := s.completeValue(at.fieldType, at.fields, res.Value, at.path, at.frames)
	if isNullish(v) {
		s.nullify(at, data)
		return
	}
	setValueAtPath(data, at.path, v)
}

// nullify writes null for a failed async field. A non-null field nulls the
// nearest nullable ancestor instead, or the whole data entry.
func (s *executionState) nullify(at asyncTask, data map[string]any) {
	if !at.fieldType.IsNonNull() {
		setValueAtPath(data, at.path, nil)
		s.nullAt(at.path)
		return
	}
	for i := len(at.frames) - 1; i >= 0; i-- {
		if f := at.frames[i]; !f.nonNull {
			setValueAtPath(data, f.path, nil)
			s.nullAt(f.path)
			return
		}
	}
	s.dataNull = true
}

func (s *executionState) completeValue(t *schema.TypeRef, fields []*language.Field, result any, path Path, frames []frame) any {
	if t.IsNonNull() {
		if isNullish(result) {
			s.errors = append(s.errors, fieldError(
				fmt.Errorf("cannot return null for non-nullable field %s", pathString(path)), path, fields))
			return nil
		}
		return s.completeNullable(t.OfType, fields, result, path, frames, true)
	}
	if isNullish(result) {
		return nil
	}
	return s.completeNullable(t, fields, result, path, frames, false)
}

func (s *executionState) completeNullable(t *schema.TypeRef, fields []*language.Field, result any, path Path, frames []frame, nonNull bool) any {
	frames = withFrame(frames, frame{path: path, nonNull: nonNull})
	if t.Kind == schema.TypeRefKindList {
		return s.completeList(t, fields, result, path, frames)
	}

	typ := s.schema.Types[t.Named]
	if typ == nil {
		s.errors = append(s.errors, fieldError(fmt.Errorf("unknown type %q", t.Named), path, fields))
		return nil
	}
	switch typ.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := s.runtime.SerializeLeafValue(s.ctx, typ.Name, result)
		if err != nil {
			s.errors = append(s.errors, fieldError(err, path, fields))
			return nil
		}
		return v
	case schema.TypeKindObject:
		return s.executeSelectionSet(typ, mergeSelectionSets(fields), result, path, frames)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		name, err := s.runtime.ResolveType(s.ctx, typ.Name, result)
		if err != nil {
			s.errors = append(s.errors, fieldError(err, path, fields))
			return nil
		}
		concrete := s.schema.Types[name]
		if concrete == nil || concrete.Kind != schema.TypeKindObject || !s.schema.IsPossibleType(typ.Name, name) {
			s.errors = append(s.errors, fieldError(
				fmt.Errorf("abstract type %s resolved to %q, which is not a possible type", typ.Name, name), path, fields))
			return nil
		}
		return s.executeSelectionSet(concrete, mergeSelectionSets(fields), result, path, frames)
	default:
		s.errors = append(s.errors, fieldError(fmt.Errorf("cannot complete value of kind %s", typ.Kind), path, fields))
		return nil
	}
}

func (s *executionState) completeList(t *schema.TypeRef, fields []*language.Field, result any, path Path, frames []frame) any {
	items, ok := result.([]any)
	if !ok {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			s.errors = append(s.errors, fieldError(fmt.Errorf("expected a list, got %T", result), path, fields))
			return nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := t.OfType
	out := make([]any, len(items))
	for i, item := range items {
		v := s.completeValue(inner, fields, item, appendPath(path, i), frames)
		if isNullish(v) {
			if inner.IsNonNull() {
				s.nullAt(path)
				return nil
			}
			v = nil
		}
		out[i] = v
	}
	return out
}

// nullAt records that the value at path became null so no queued task below
// it is run or written.
func (s *executionState) nullAt(path Path) {
	if len(path) == 0 {
		s.dataNull = true
		return
	}
	s.tombstones[pathKey(path)] = struct{}{}
}

func (s *executionState) dead(path Path) bool {
	if len(s.tombstones) == 0 {
		return false
	}
	for i := 1; i <= len(path); i++ {
		if _, ok := s.tombstones[pathKey(path[:i])]; ok {
			return true
		}
	}
	return false
}

func selectOperation(document *language.QueryDocument, name string) (*language.OperationDefinition, error) {
	if name == "" {
		switch len(document.Operations) {
		case 0:
			return nil, fmt.Errorf("operation not found")
		case 1:
			return document.Operations[0], nil
		default:
			return nil, fmt.Errorf("operation name is required when the document contains several operations")
		}
	}
	if op := document.Operations.ForName(name); op != nil {
		return op, nil
	}
	return nil, fmt.Errorf("operation %q not found", name)
}

func withFrame(frames []frame, f frame) []frame {
	out := make([]frame, len(frames)+1)
	copy(out, frames)
	out[len(frames)] = f
	return out
}

func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

func pathKey(path Path) string {
	var b strings.Builder
	for _, elem := range path {
		switch v := elem.(type) {
		case string:
			b.WriteString("/")
			b.WriteString(v)
		case int:
			b.WriteString("/#")
			b.WriteString(strconv.Itoa(v))
		}
	}
	return b.String()
}

func pathString(path Path) string {
	var b strings.Builder
	for i, elem := range path {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteString(".")
			}
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return b.String()
}

// setValueAtPath replaces the value at path inside an already built response
// tree. Missing intermediate nodes mean the branch was nulled; nothing is
// written then.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	var cur any = root
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			cur = m[e]
		case int:
			list, ok := cur.([]any)
			if !ok || e >= len(list) {
				return
			}
			cur = list[e]
		}
	}
	switch e := path[len(path)-1].(type) {
	case string:
		if m, ok := cur.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if list, ok := cur.([]any); ok && e < len(list) {
			list[e] = value
		}
	}
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
