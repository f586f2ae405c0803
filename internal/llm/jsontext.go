package llm

import (
	"encoding/json"
	"strings"
)

// composePrompt appends the structured input as a JSON block.
func composePrompt(prompt string, input any) string {
	if input == nil {
		return prompt
	}
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil || string(in) == "null" {
		return prompt
	}
	return prompt + "\n\n[INPUT JSON]\n" + string(in)
}

// extractJSON pulls a JSON document out of model text that may be wrapped in
// markdown code fences or surrounded by prose.
func extractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, ErrEmptyResponse
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, ErrInvalidJSON
}
