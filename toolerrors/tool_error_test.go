package toolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsEmptyMessage(t *testing.T) {
	err := New("search", "")
	require.Equal(t, "search: tool error", err.Error())
}

func TestNewWithCauseChainsUnderlyingError(t *testing.T) {
	cause := errors.New("upstream 500")
	err := NewWithCause("search", "request failed", cause)
	require.Equal(t, "search: request failed", err.Error())

	var chained *ToolError
	require.ErrorAs(t, err.Unwrap(), &chained)
	require.Equal(t, "search: upstream 500", chained.Error())
}

func TestFromErrorPreservesExistingToolName(t *testing.T) {
	inner := New("search", "timed out")
	wrapped := FromError("overridden", inner)
	require.Equal(t, "search", wrapped.Tool)
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := Errorf("search", "attempt %d of %d failed", 3, 5)
	require.Equal(t, "search: attempt 3 of 5 failed", err.Error())
}

func TestNilToolErrorIsSafe(t *testing.T) {
	var err *ToolError
	require.Equal(t, "", err.Error())
	require.NoError(t, err.Unwrap())
}
