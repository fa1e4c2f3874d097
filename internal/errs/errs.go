// Package errs defines the error taxonomy shared by the registry, the
// authorization guard, the validation engine and the storage drivers.
//
// Errors that reach the GraphQL boundary implement Extensions so the executor
// can attach a machine readable code to the error entry.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotReady     = errors.New("schema not ready")
)

// Error codes reported in GraphQL error extensions.
const (
	CodeForbidden       = "FORBIDDEN"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeBadUserInput    = "BAD_USER_INPUT"
	CodeStorage         = "STORAGE_UNAVAILABLE"
	CodeNotFound        = "NOT_FOUND"
)

// CompositionError reports every problem found while materializing the
// schema document. It is fatal: the server never starts serving.
type CompositionError struct {
	Errors []error
}

func (e *CompositionError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "schema composition failed: " + strings.Join(msgs, "; ")
}

func (e *CompositionError) Unwrap() []error { return e.Errors }

// AuthorizationError is returned by the guard when the request identity does
// not satisfy a field's role requirement.
type AuthorizationError struct {
	Type     string
	Field    string
	Required string
	// Anonymous is set when the request carried no identity.
	Anonymous bool
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized: %s.%s requires %s", e.Type, e.Field, e.Required)
}

func (e *AuthorizationError) Extensions() map[string]any {
	code := CodeForbidden
	if e.Anonymous {
		code = CodeUnauthenticated
	}
	return map[string]any{"code": code, "requires": e.Required}
}

// Issue is one failed check of a validator, located by a dotted path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError is returned when a payload fails its composed validator.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("validation failed (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func (e *ValidationError) Extensions() map[string]any {
	issues := make([]any, len(e.Issues))
	for i, is := range e.Issues {
		issues[i] = map[string]any{"path": is.Path, "message": is.Message}
	}
	return map[string]any{"code": CodeBadUserInput, "issues": issues}
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// StorageError wraps a failure of one of the storage capability providers.
type StorageError struct {
	Store string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Extensions() map[string]any {
	if errors.Is(e.Err, ErrNotFound) {
		return map[string]any{"code": CodeNotFound}
	}
	return map[string]any{"code": CodeStorage}
}

// Storage wraps err as a StorageError unless it is nil or already one.
func Storage(store, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Store: store, Op: op, Err: err}
}

// Invalid builds a single-issue ValidationError.
func Invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{Issues: []Issue{{Path: path, Message: fmt.Sprintf(format, args...)}}}
}
