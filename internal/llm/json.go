package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON object embedded in a model response. Models
// often wrap JSON in ```json fences or add a sentence before it; both are
// stripped. The result is not validated beyond brace matching.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// DecodeJSON extracts and unmarshals the JSON object in text into target.
func DecodeJSON(text string, target any) error {
	raw := ExtractJSON(text)
	if raw == "" {
		return fmt.Errorf("llm: empty response")
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("llm: parse response: %w", err)
	}
	return nil
}
