// Package validate is the runtime validation engine for records whose shape
// is defined by registry data instead of GraphQL types.
//
// A Node is a serializable structural definition. Definitions are stored per
// key; Compose loads the definitions of a key set and combines them into one
// object-shaped Validator that coerces payloads and describes the shape back.
package validate

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Node types.
const (
	TypeAny     = "any"
	TypeNever   = "never"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeConst   = "const"
	TypeArray   = "array"
	TypeDict    = "dict"
	TypeObject  = "object"
	TypeUnion   = "union"
)

// Semantic kinds attached to definitions. Clients use them to pick an editor;
// the engine uses them to pick a coercion.
const (
	KindFile   = "file"
	KindImage  = "image"
	KindCSV    = "csv"
	KindOffice = "office"
	KindNumber = "number"
)

// Node is one structural definition.
type Node struct {
	Type  string           `json:"type"`
	Inner *Node            `json:"inner,omitempty"`
	Dict  map[string]*Node `json:"dict,omitempty"`
	List  []*Node          `json:"list,omitempty"`
	Value any              `json:"value,omitempty"`
	Meta  Meta             `json:"meta"`
}

// Meta holds the modifiers of a Node.
type Meta struct {
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Description string   `json:"description,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

func Any() *Node     { return &Node{Type: TypeAny} }
func Never() *Node   { return &Node{Type: TypeNever} }
func String() *Node  { return &Node{Type: TypeString} }
func Number() *Node  { return &Node{Type: TypeNumber} }
func Boolean() *Node { return &Node{Type: TypeBoolean} }

func Const(v any) *Node         { return &Node{Type: TypeConst, Value: v} }
func Array(inner *Node) *Node   { return &Node{Type: TypeArray, Inner: inner} }
func Dict(inner *Node) *Node    { return &Node{Type: TypeDict, Inner: inner} }
func Union(list ...*Node) *Node { return &Node{Type: TypeUnion, List: list} }

func Object(fields map[string]*Node) *Node {
	if fields == nil {
		fields = map[string]*Node{}
	}
	return &Node{Type: TypeObject, Dict: fields}
}

func (n *Node) clone() *Node {
	c := *n
	return &c
}

// Required returns a copy of n that rejects absent values.
func (n *Node) Required() *Node { c := n.clone(); c.Meta.Required = true; return c }

// Kind returns a copy of n tagged with a semantic kind.
func (n *Node) Kind(kind string) *Node { c := n.clone(); c.Meta.Kind = kind; return c }

// Default returns a copy of n that substitutes v for absent values.
func (n *Node) Default(v any) *Node { c := n.clone(); c.Meta.Default = v; return c }

// Description returns a copy of n carrying a human readable description.
func (n *Node) Description(s string) *Node { c := n.clone(); c.Meta.Description = s; return c }

// Min bounds numbers by value and strings and arrays by length.
func (n *Node) Min(v float64) *Node { c := n.clone(); c.Meta.Min = &v; return c }

// Max bounds numbers by value and strings and arrays by length.
func (n *Node) Max(v float64) *Node { c := n.clone(); c.Meta.Max = &v; return c }

// Keys returns the sorted keys of an object node.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.Dict))
	for k := range n.Dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Marshal renders n as the string stored in a definition record.
func (n *Node) Marshal() (string, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MustMarshal is Marshal for definitions built in code.
func (n *Node) MustMarshal() string {
	s, err := n.Marshal()
	if err != nil {
		panic(fmt.Sprintf("validate: marshal %s node: %v", n.Type, err))
	}
	return s
}
