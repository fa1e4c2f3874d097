package reqid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}

func TestWithID(t *testing.T) {
	got, _ := FromContext(WithID(context.Background(), "abc"))
	require.Equal(t, "abc", got)

	got, _ = FromContext(WithID(context.Background(), ""))
	require.Len(t, got, 36)
}
