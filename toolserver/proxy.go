package toolserver

import "encoding/json"

// UnwrapResult implements the tool proxy contract: it extracts a
// ToolResult's first text content block; if that text parses as a JSON
// object carrying a "result" key, the nested value is returned; otherwise
// the raw text is returned; if there is no content at all, the raw result
// is returned as-is. A result with IsError set never reaches the "success"
// path: it surfaces as a *ToolCallError, even if a caller bypassed
// Multiplexer.Call (which already turns IsError into an error before this
// is reached) and handed UnwrapResult a raw ToolResult directly.
func UnwrapResult(result *ToolResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	if result.IsError {
		return nil, &ToolCallError{Text: resultText(result)}
	}
	if len(result.Content) == 0 {
		return result, nil
	}
	text := result.Content[0].Text
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		if v, ok := obj["result"]; ok {
			return v, nil
		}
	}
	return text, nil
}
