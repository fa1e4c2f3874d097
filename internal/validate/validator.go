package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/hanpama/graphcms/internal/errs"
)

// DefinitionStore is the registry of structural definitions, keyed by field
// name. Definitions returns the serialized definitions of the keys that exist;
// absent keys are simply missing from the map.
type DefinitionStore interface {
	Definitions(ctx context.Context, keys []string) (map[string]string, error)
}

// Validator is an object-shaped validator composed from definition records.
// It is built per operation and must not be cached: the registry may change
// between requests.
type Validator struct {
	engine  *Engine
	root    *Node
	lenient bool
}

// Compose loads the definitions of keys in one lookup and combines them. A
// key without a definition still appears in the validator, bound to a node
// that rejects every value.
func (e *Engine) Compose(ctx context.Context, store DefinitionStore, keys []string) (*Validator, error) {
	keys = dedupe(keys)
	defs, err := store.Definitions(ctx, keys)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]*Node, len(keys))
	for _, k := range keys {
		def, ok := defs[k]
		if !ok || def == "" {
			fields[k] = Never()
			continue
		}
		n, err := ParseNode(def)
		if err != nil {
			return nil, fmt.Errorf("definition of key %q: %w", k, err)
		}
		fields[k] = n
	}
	return &Validator{engine: e, root: Object(fields)}, nil
}

// NewValidator wraps an object node built in code.
func (e *Engine) NewValidator(root *Node) *Validator {
	return &Validator{engine: e, root: root}
}

// Lenient returns a copy of v that passes unknown and unregistered keys
// through unchanged instead of rejecting them. Retrieval paths use it, since
// their key set comes from the stored document itself.
func (v *Validator) Lenient() *Validator {
	c := *v
	c.lenient = true
	return &c
}

// Apply validates and coerces every top-level key of payload. Nothing is
// returned unless the whole payload is valid.
func (v *Validator) Apply(payload map[string]any) (map[string]any, error) {
	var issues []errs.Issue
	out := make(map[string]any, len(payload))
	for _, k := range v.root.Keys() {
		n := v.root.Dict[k]
		val, has := payload[k]
		if n.Type == TypeNever && has {
			if v.lenient {
				out[k] = val
				continue
			}
			issues = append(issues, errs.Issue{Path: k, Message: "is not a registered key"})
			continue
		}
		if cv, present := v.engine.apply(n, val, has, k, &issues); present {
			out[k] = cv
		}
	}
	for _, k := range sortedKeys(payload) {
		if _, known := v.root.Dict[k]; known {
			continue
		}
		if !v.lenient {
			issues = append(issues, errs.Issue{Path: k, Message: "unknown key"})
			continue
		}
		out[k] = payload[k]
	}
	if len(issues) > 0 {
		return nil, &errs.ValidationError{Issues: issues}
	}
	return out, nil
}

// Describe returns the composed object definition.
func (v *Validator) Describe() *Node { return v.root }

// Keys is the key set the validator was composed from.
func (v *Validator) Keys() []string { return v.root.Keys() }

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PayloadKeys returns the keys of m whose value is not null.
func PayloadKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k, val := range m {
		if val != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
