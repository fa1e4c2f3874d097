package store

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Encode renders doc with its id for storage.
func Encode(id string, doc Document) ([]byte, error) {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[IDField] = id
	return json.Marshal(out)
}

// Decode parses a stored document.
func Decode(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Clone deep copies doc through its JSON form.
func Clone(doc Document) (Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Merge returns a copy of doc with set applied. A nil value in set removes
// the key.
func Merge(doc, set Document) Document {
	out := make(Document, len(doc)+len(set))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range set {
		if k == IDField {
			continue
		}
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Match reports whether doc satisfies f.
func Match(doc Document, f Filter) bool {
	for field, want := range f {
		if !matchValue(doc[field], want) {
			return false
		}
	}
	return true
}

func matchValue(have, want any) bool {
	if in, ok := want.(In); ok {
		for _, w := range in {
			if matchValue(have, w) {
				return true
			}
		}
		return false
	}
	if list, ok := have.([]any); ok {
		if _, wantList := want.([]any); !wantList {
			for _, e := range list {
				if equal(e, want) {
					return true
				}
			}
			return false
		}
	}
	return equal(have, want)
}

// equal compares JSON values, treating every numeric type alike.
func equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// SortByID orders docs by their id.
func SortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i][IDField].(string)
		b, _ := docs[j][IDField].(string)
		return a < b
	})
}
