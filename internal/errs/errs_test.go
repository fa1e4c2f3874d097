package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorageWrapping(t *testing.T) {
	require.NoError(t, Storage("docs", "get", nil))

	err := Storage("docs", "get", ErrNotFound)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "docs get: not found", err.Error())

	var se *StorageError
	require.ErrorAs(t, fmt.Errorf("loading: %w", err), &se)
	require.Equal(t, map[string]any{"code": CodeNotFound}, se.Extensions())

	// already classified errors are not wrapped twice
	again := Storage("index", "search", err)
	require.Same(t, err, again)
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Issues: []Issue{
		{Path: "title", Message: "field is required"},
		{Path: "ghost", Message: "unknown field"},
	}}
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, "validation failed (2 issues): title: field is required; ghost: unknown field", err.Error())
	require.Equal(t, CodeBadUserInput, err.Extensions()["code"])

	single := Invalid("price", "expected %s", "number")
	require.Equal(t, "validation failed: price: expected number", single.Error())
}

func TestAuthorizationErrorCodes(t *testing.T) {
	err := &AuthorizationError{Type: "ItemContext", Field: "del", Required: "ADMIN"}
	require.Equal(t, CodeForbidden, err.Extensions()["code"])

	err.Anonymous = true
	require.Equal(t, CodeUnauthenticated, err.Extensions()["code"])
	require.Contains(t, err.Error(), "ItemContext.del requires ADMIN")
}

func TestCompositionErrorUnwrap(t *testing.T) {
	inner := errors.New("Undefined type Ghost")
	err := &CompositionError{Errors: []error{inner}}
	require.ErrorIs(t, err, inner)
	require.Equal(t, "schema composition failed: Undefined type Ghost", err.Error())
}
