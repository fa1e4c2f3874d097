package executor

import (
	language "github.com/hanpama/graphcms/internal/language"
	schema "github.com/hanpama/graphcms/internal/schema"
)

// fieldGroup is the set of field nodes sharing one response name.
type fieldGroup struct {
	responseName string
	fields       []*language.Field
}

// collectFields groups the selections that apply to objectType by response
// name, in document order.
func (s *executionState) collectFields(objectType *schema.Type, selectionSet language.SelectionSet) []fieldGroup {
	var groups []fieldGroup
	index := make(map[string]int)
	visited := make(map[string]bool)
	s.collectInto(objectType, selectionSet, &groups, index, visited)
	return groups
}

func (s *executionState) collectInto(objectType *schema.Type, selectionSet language.SelectionSet, groups *[]fieldGroup, index map[string]int, visited map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !s.included(sel.Directives) {
				continue
			}
			name := sel.Alias
			if name == "" {
				name = sel.Name
			}
			if i, ok := index[name]; ok {
				(*groups)[i].fields = append((*groups)[i].fields, sel)
				continue
			}
			index[name] = len(*groups)
			*groups = append(*groups, fieldGroup{responseName: name, fields: []*language.Field{sel}})

		case *language.InlineFragment:
			if !s.included(sel.Directives) || !s.fragmentApplies(sel.TypeCondition, objectType) {
				continue
			}
			s.collectInto(objectType, sel.SelectionSet, groups, index, visited)

		case *language.FragmentSpread:
			if !s.included(sel.Directives) || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			def := s.document.Fragments.ForName(sel.Name)
			if def == nil || !s.fragmentApplies(def.TypeCondition, objectType) {
				continue
			}
			s.collectInto(objectType, def.SelectionSet, groups, index, visited)
		}
	}
}

func (s *executionState) fragmentApplies(typeCondition string, objectType *schema.Type) bool {
	return typeCondition == "" || s.schema.IsPossibleType(typeCondition, objectType.Name)
}

// included evaluates @skip and @include.
func (s *executionState) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && s.directiveFlag(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !s.directiveFlag(d) {
		return false
	}
	return true
}

func (s *executionState) directiveFlag(d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, _ := valueFromAST(arg.Value, s.variables).(bool)
	return v
}
