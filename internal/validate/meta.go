package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hanpama/graphcms/internal/errs"
)

const metaSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "meta": {
      "type": "object",
      "properties": {
        "required": {"type": "boolean"},
        "kind": {"enum": ["file", "image", "csv", "office", "number"]},
        "description": {"type": "string"},
        "min": {"type": "number"},
        "max": {"type": "number"}
      }
    },
    "node": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["any", "never", "string", "number", "boolean", "const", "array", "dict", "object", "union"]},
        "inner": {"$ref": "#/definitions/node"},
        "dict": {"type": "object", "additionalProperties": {"$ref": "#/definitions/node"}},
        "list": {"type": "array", "items": {"$ref": "#/definitions/node"}},
        "meta": {"$ref": "#/definitions/meta"}
      },
      "allOf": [
        {"if": {"properties": {"type": {"enum": ["array", "dict"]}}}, "then": {"required": ["inner"]}},
        {"if": {"properties": {"type": {"const": "union"}}}, "then": {"required": ["list"]}},
        {"if": {"properties": {"type": {"const": "const"}}}, "then": {"required": ["value"]}}
      ]
    }
  },
  "$ref": "#/definitions/node"
}`

var (
	metaOnce   sync.Once
	metaLoaded *gojsonschema.Schema
	metaErr    error
)

func metaValidator() (*gojsonschema.Schema, error) {
	metaOnce.Do(func() {
		metaLoaded, metaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(metaSchema))
	})
	return metaLoaded, metaErr
}

// ParseNode decodes a stored structural definition. The document is checked
// against the definition meta-schema first, so a malformed definition is
// rejected with every problem listed rather than the first decode error.
func ParseNode(definition string) (*Node, error) {
	meta, err := metaValidator()
	if err != nil {
		return nil, fmt.Errorf("compile definition meta-schema: %w", err)
	}
	res, err := meta.Validate(gojsonschema.NewStringLoader(definition))
	if err != nil {
		return nil, errs.Invalid("", "definition is not valid JSON: %v", err)
	}
	if !res.Valid() {
		issues := make([]errs.Issue, 0, len(res.Errors()))
		for _, d := range res.Errors() {
			issues = append(issues, errs.Issue{Path: metaPath(d.Field()), Message: d.Description()})
		}
		return nil, &errs.ValidationError{Issues: issues}
	}
	var n Node
	if err := json.Unmarshal([]byte(definition), &n); err != nil {
		return nil, errs.Invalid("", "decode definition: %v", err)
	}
	return &n, nil
}

func metaPath(field string) string {
	if field == "(root)" {
		return ""
	}
	return strings.TrimPrefix(field, "(root).")
}
