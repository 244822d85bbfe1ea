package bridge

import (
	"encoding/json"
	"time"
)

// Request is what a caller hands to the bridge: an operation name that
// must match a discovered tool, and an opaque argument mapping that is
// forwarded to the provider untouched.
type Request struct {
	Operation string         `json:"operation_name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDescriptor describes one capability discovered from a provider at
// connection time. InputSchema is passed through without local validation.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Result is the outcome of Invoke. Exactly one of Payload (on success) or
// Error (on failure) is set; Operation is always echoed back.
type Result struct {
	Success   bool            `json:"success"`
	Operation string          `json:"operation_name"`
	Payload   json.RawMessage `json:"result_payload,omitempty"`
	Error     string          `json:"error_message,omitempty"`
	Kind      ErrorKind       `json:"error_kind,omitempty"`
	Duration  time.Duration   `json:"-"`
}

// ToolList is the outcome of ListCapabilities.
type ToolList struct {
	Success  bool             `json:"success"`
	Tools    []ToolDescriptor `json:"tools,omitempty"`
	Error    string           `json:"error_message,omitempty"`
	Kind     ErrorKind        `json:"error_kind,omitempty"`
	Duration time.Duration    `json:"-"`
}

// Names returns the tool names in discovery order.
func (l *ToolList) Names() []string {
	names := make([]string, len(l.Tools))
	for i, t := range l.Tools {
		names[i] = t.Name
	}
	return names
}

func failedResult(operation string, err error) *Result {
	return &Result{
		Operation: operation,
		Error:     err.Error(),
		Kind:      kindOf(err),
	}
}

// toJSON renders v as indented JSON text, the format agents consume.
// Marshal failures are folded into a minimal error document so the text
// contract always holds.
func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return `{"success": false, "error_message": "failed to encode result", "error_kind": "transport_error"}`
	}
	return string(data)
}

// JSON renders the result as indented JSON text.
func (r *Result) JSON() string { return toJSON(r) }

// JSON renders the tool list as indented JSON text.
func (l *ToolList) JSON() string { return toJSON(l) }
