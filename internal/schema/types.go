package schema

// NewSchema returns an empty schema with the conventional root type names.
func NewSchema(description string) *Schema {
	return &Schema{
		QueryType:   "Query",
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
}

// AddType registers t, replacing any type with the same name.
func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.Directives[d.Name] = d
	return s
}

// Type looks up a named type.
func (s *Schema) Type(name string) (*Type, bool) {
	t, ok := s.Types[name]
	return t, ok
}

// Field looks up a field of a named object or interface type.
func (s *Schema) Field(typeName, fieldName string) (*Field, bool) {
	t, ok := s.Types[typeName]
	if !ok {
		return nil, false
	}
	f := t.Field(fieldName)
	return f, f != nil
}

// IsPossibleType reports whether the object type named concrete may be the
// runtime type of abstract (itself, a union member or an implementor).
func (s *Schema) IsPossibleType(abstract, concrete string) bool {
	if abstract == concrete {
		return true
	}
	t, ok := s.Types[abstract]
	if !ok {
		return false
	}
	for _, name := range t.PossibleTypes {
		if name == concrete {
			return true
		}
	}
	return false
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type {
	t.Fields = append(t.Fields, f)
	return t
}

// Field returns the field with the given name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Directive returns the first applied directive with the given name, or nil.
func (t *Type) Directive(name string) *AppliedDirective {
	return findDirective(t.Directives, name)
}

// Directive returns the first applied directive with the given name, or nil.
func (f *Field) Directive(name string) *AppliedDirective {
	return findDirective(f.Directives, name)
}

// Argument returns the argument definition with the given name, or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func findDirective(list []*AppliedDirective, name string) *AppliedDirective {
	for _, d := range list {
		if d.Name == name {
			return d
		}
	}
	return nil
}
