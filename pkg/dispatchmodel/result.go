package dispatchmodel

import "encoding/json"

// ToolResult is the outcome of a single tool dispatch.
type ToolResult struct {
	Success         bool            `json:"success"`
	Output          json.RawMessage `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMS uint64          `json:"execution_time_ms"`
	ContextUsed     ContextFrame    `json:"context_used"`
}

// Failure builds a non-successful ToolResult with the given error message.
func Failure(ctx ContextFrame, message string) *ToolResult {
	return &ToolResult{
		Success:     false,
		Error:       message,
		ContextUsed: ctx,
	}
}

// Succeed builds a successful ToolResult, marshaling output to JSON.
// A nil output is permitted (void result).
func Succeed(ctx ContextFrame, output any) (*ToolResult, error) {
	result := &ToolResult{Success: true, ContextUsed: ctx}
	if output == nil {
		return result, nil
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result.Output = raw
	return result, nil
}
