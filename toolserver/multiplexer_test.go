package toolserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChild struct {
	tools       []ToolSpec
	failUntil   int
	isErrUntil  int
	calls       int
	result      *ToolResult
	errorResult *ToolResult
}

func (f *fakeChild) listTools(context.Context) ([]ToolSpec, error) {
	return f.tools, nil
}

func (f *fakeChild) callTool(context.Context, string, []any) (*ToolResult, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, errors.New("transient upstream failure")
	}
	if f.calls <= f.isErrUntil {
		return f.errorResult, &ToolCallError{Text: resultText(f.errorResult)}
	}
	return f.result, nil
}

func (f *fakeChild) close() error { return nil }

func TestRegisterRejectsToolNameCollision(t *testing.T) {
	m := newMultiplexer()
	require.NoError(t, m.register(context.Background(), "a", &fakeChild{tools: []ToolSpec{{Name: "search"}}}))
	err := m.register(context.Background(), "b", &fakeChild{tools: []ToolSpec{{Name: "search"}}})
	require.Error(t, err)
}

func TestCallRoutesToOwningChild(t *testing.T) {
	m := newMultiplexer()
	fc := &fakeChild{
		tools:  []ToolSpec{{Name: "add"}},
		result: &ToolResult{Content: []ContentItem{{Type: "text", Text: "5"}}},
	}
	require.NoError(t, m.register(context.Background(), "math", fc))

	result, err := m.Call(context.Background(), "add", []any{2, 3})
	require.NoError(t, err)
	require.Equal(t, "5", result.Content[0].Text)
}

func TestCallUnknownTool(t *testing.T) {
	m := newMultiplexer()
	_, err := m.Call(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestCallRetriesOnTransientFailure(t *testing.T) {
	m := newMultiplexer()
	fc := &fakeChild{
		tools:     []ToolSpec{{Name: "search"}},
		failUntil: 2,
		result:    &ToolResult{Content: []ContentItem{{Type: "text", Text: "ok"}}},
	}
	require.NoError(t, m.register(context.Background(), "web", fc))

	result, err := m.Call(context.Background(), "search", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Content[0].Text)
	require.Equal(t, 3, fc.calls)
}

func TestCallFailsAfterExhaustingRetries(t *testing.T) {
	m := newMultiplexer()
	fc := &fakeChild{tools: []ToolSpec{{Name: "search"}}, failUntil: 99}
	require.NoError(t, m.register(context.Background(), "web", fc))

	_, err := m.Call(context.Background(), "search", nil)
	require.Error(t, err)
	require.Equal(t, len(retryDelays)+1, fc.calls)
}

func TestCallRetriesOnToolLevelIsError(t *testing.T) {
	m := newMultiplexer()
	fc := &fakeChild{
		tools:       []ToolSpec{{Name: "search"}},
		isErrUntil:  2,
		errorResult: &ToolResult{IsError: true, Content: []ContentItem{{Type: "text", Text: "upstream 500"}}},
		result:      &ToolResult{Content: []ContentItem{{Type: "text", Text: "ok"}}},
	}
	require.NoError(t, m.register(context.Background(), "web", fc))

	result, err := m.Call(context.Background(), "search", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Content[0].Text)
	require.Equal(t, 3, fc.calls)
}

func TestHasToolAndListTools(t *testing.T) {
	m := newMultiplexer()
	require.NoError(t, m.register(context.Background(), "math", &fakeChild{tools: []ToolSpec{{Name: "add"}, {Name: "sub"}}}))
	require.True(t, m.HasTool("add"))
	require.False(t, m.HasTool("missing"))
	require.Len(t, m.ListTools(), 2)
}
