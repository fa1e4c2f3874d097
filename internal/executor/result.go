package executor

import (
	"errors"

	language "github.com/hanpama/graphcms/internal/language"
)

type Path []PathElement

type PathElement any

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

type extender interface {
	Extensions() map[string]any
}

// fieldError locates err at path and the position of the first field node.
func fieldError(err error, path Path, fields []*language.Field) GraphQLError {
	ge := GraphQLError{Message: err.Error(), Path: path}
	var ext extender
	if errors.As(err, &ext) {
		ge.Extensions = ext.Extensions()
	}
	if len(fields) > 0 && fields[0].Position != nil {
		ge.Locations = []Location{{Line: fields[0].Position.Line, Column: fields[0].Position.Column}}
	}
	return ge
}
