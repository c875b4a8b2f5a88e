// Package toolerrors provides the structured error type the executor uses
// to report a tool-call failure: it names the tool the executor was
// invoking when the failure occurred and chains to the underlying cause.
// The chain is made of ToolError links, one per wrapped error and carrying
// its message, so errors.As can reach any link; the original error values
// themselves are not kept, so errors.Is against them does not match.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError is a tool-call failure tagged with the name of the tool the
// executor was calling. Cause links to the error that produced it -
// typically a *toolserver.ToolCallError or a transport failure from the
// tool-server multiplexer - converted into a ToolError chain so the
// diagnostic survives beyond the call stack that raised it.
type ToolError struct {
	// Tool is the name of the tool the executor was calling.
	Tool string
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling error chains with errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError for tool with the given message. Use when the
// failure does not wrap an underlying error but still requires structured
// reporting.
func New(tool, message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Tool: tool, Message: message}
}

// NewWithCause constructs a ToolError for tool that wraps an underlying
// error. The cause is converted into a ToolError chain so error metadata
// survives serialization while still supporting errors.Is/As through
// Unwrap.
func NewWithCause(tool, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Tool:    tool,
		Message: message,
		Cause:   FromError(tool, cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain, tagging
// the outermost link with tool if it doesn't already carry one.
func FromError(tool string, err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		if te.Tool == "" {
			te.Tool = tool
		}
		return te
	}
	return &ToolError{
		Tool:    tool,
		Message: err.Error(),
		Cause:   FromError(tool, errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as
// a ToolError for tool.
func Errorf(tool, format string, args ...any) *ToolError {
	return New(tool, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Tool == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
