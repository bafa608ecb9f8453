package tools

import "encoding/json"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`  // content sent to the LLM; JSON when the tool returns structured output
	IsError bool   `json:"is_error"` // marks error
	Err     error  `json:"-"`        // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

// JSONResult marshals v as the LLM-facing content.
func JSONResult(v any) *Result {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("failed to encode tool result").WithError(err)
	}
	return &Result{ForLLM: string(data)}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// Output returns the result as a JSON value for a persisted tool-result part.
// Plain-text results become JSON strings.
func (r *Result) Output() json.RawMessage {
	if json.Valid([]byte(r.ForLLM)) {
		return json.RawMessage(r.ForLLM)
	}
	data, _ := json.Marshal(r.ForLLM)
	return data
}
