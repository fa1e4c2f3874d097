package store

import (
	"fmt"
	"sort"
	"strings"
)

// Hit is a scored search result.
type Hit struct {
	ID    string
	Score float64
}

// Score rates body against q. A field scores its weight for a substring
// match and twice its weight when the value starts with the keyword. With an
// empty keyword every document matches with score zero; ok is false when
// nothing matched.
func Score(body Document, q Query) (score float64, ok bool) {
	kw := strings.ToLower(strings.TrimSpace(q.Keyword))
	if kw == "" {
		return 0, true
	}
	fields := q.Fields
	if len(fields) == 0 {
		for k := range body {
			fields = append(fields, Boost{Field: k, Weight: 1})
		}
	}
	for _, f := range fields {
		text := strings.ToLower(Text(body[f.Field]))
		if text == "" {
			continue
		}
		w := f.Weight
		if w == 0 {
			w = 1
		}
		switch {
		case strings.HasPrefix(text, kw):
			score += 2 * w
			ok = true
		case strings.Contains(text, kw):
			score += w
			ok = true
		}
	}
	return score, ok
}

// Text flattens a JSON value into searchable text.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := Text(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprint(v)
}

// Rank sorts hits best first, ties by id, and returns the page [from, from+size).
func Rank(hits []Hit, from, size int) []string {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if from < 0 {
		from = 0
	}
	if from > len(hits) {
		from = len(hits)
	}
	end := len(hits)
	if size > 0 && from+size < end {
		end = from + size
	}
	ids := make([]string, 0, end-from)
	for _, h := range hits[from:end] {
		ids = append(ids, h.ID)
	}
	return ids
}
