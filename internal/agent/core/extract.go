package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first balanced top-level JSON object out of free-form
// model text and unmarshals it into dst. Markdown code fences are stripped
// before scanning, so both fenced and bare objects parse.
func ExtractJSON(text string, dst interface{}) error {
	cleaned := stripFences(text)

	jsonStr := ""
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range cleaned {
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				jsonStr = cleaned[start : i+1]
			}
		}
		if jsonStr != "" {
			break
		}
	}
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(jsonStr), dst); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

// stripFences removes ```json ... ``` style fences, keeping the inner text.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Truncate shortens s for logging and raw-response persistence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
