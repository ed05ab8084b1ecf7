package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the outermost JSON object in text, dropping markdown
// code fences and any prose around it.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// DecodeJSON extracts the object from text and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}
	return nil
}
