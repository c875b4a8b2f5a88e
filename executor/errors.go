package executor

import (
	"fmt"

	"qa-orchestrator/toolerrors"
)

// OperationBudgetExceeded is returned by the static call-count guard when a
// snippet's call expression count exceeds MaxOperations.
type OperationBudgetExceeded struct {
	Count int
	Limit int
}

func (e *OperationBudgetExceeded) Error() string {
	return fmt.Sprintf("OperationBudgetExceeded: %d calls exceeds limit of %d", e.Count, e.Limit)
}

// TimeoutError is returned when a snippet's execution exceeds its computed
// budget of max(3s, call_count * per-call budget).
type TimeoutError struct {
	Budget string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timeout: execution exceeded %s", e.Budget)
}

// ToolError wraps a tool-call failure surfaced during snippet execution in
// a toolerrors.ToolError tagged with the offending tool's name. It carries
// the failure's text only: the original error value (typically a
// *toolserver.ToolCallError once the multiplexer has exhausted its
// retries) is not kept in its chain.
type ToolError struct {
	*toolerrors.ToolError
}

// newToolError builds a ToolError from the call-failure text for tool.
func newToolError(tool, text string) *ToolError {
	return &ToolError{ToolError: toolerrors.New(tool, text)}
}

// RuntimeError is any other execution-time failure: undefined name, type
// mismatch, division by zero, disallowed import, and similar.
type RuntimeError struct {
	Kind    string
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("RuntimeError(%s): %s", e.Kind, e.Message)
}
