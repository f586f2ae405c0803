package llmtool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionEnvelope is one model reply inside the tool loop: either a tool
// call or a final answer.
type ActionEnvelope struct {
	Action    string          `json:"action,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Final     json.RawMessage `json:"final,omitempty"`
}

// ParseAction decodes a model reply. A missing action is inferred from the
// fields present, and an object carrying none of the envelope fields is
// taken as the final answer itself.
func ParseAction(raw json.RawMessage) (ActionEnvelope, error) {
	var env ActionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ActionEnvelope{}, fmt.Errorf("llmtool: parse action: %w", err)
	}
	env.Action = strings.ToLower(strings.TrimSpace(env.Action))
	if env.Action == "" {
		env.Action = inferAction(&env, raw)
	}
	if env.Action != "final" && env.Action != "tool" {
		return ActionEnvelope{}, fmt.Errorf("%w %q", ErrUnknownAction, env.Action)
	}
	return env, nil
}

func inferAction(env *ActionEnvelope, raw json.RawMessage) string {
	switch {
	case len(env.Final) > 0:
		return "final"
	case env.ToolName != "" || len(env.ToolInput) > 0:
		return "tool"
	default:
		env.Final = raw
		return "final"
	}
}

// textKeys are the object fields FinalText accepts as the answer body.
var textKeys = []string{"output", "answer", "text", "report", "content", "markdown"}

// FinalText turns a final payload into plain text. A JSON string is
// unquoted; an object yields its first text field; anything else is
// returned as indented JSON.
func FinalText(final json.RawMessage) string {
	trimmed := strings.TrimSpace(string(final))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(final, &s); err == nil {
		return s
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(final, &obj); err == nil {
		for _, k := range textKeys {
			if v, ok := obj[k]; ok {
				if err := json.Unmarshal(v, &s); err == nil {
					return s
				}
			}
		}
	}
	var anyVal any
	if err := json.Unmarshal(final, &anyVal); err == nil {
		if b, err := json.MarshalIndent(anyVal, "", "  "); err == nil {
			return string(b)
		}
	}
	return trimmed
}
