package llm

import (
	"encoding/json"
	"strings"
)

// ParseFailed is the sentinel dropped into a field when the model response
// could not be parsed as JSON even after repair.
const ParseFailed = "parse_failed"

// CleanJSON extracts a JSON object from a model response: strips markdown
// code fences, trims prose around the outermost braces, and appends missing
// closing brackets when the model ran out of tokens mid-object.
func CleanJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	// Strip ```json ... ``` fences wherever they appear.
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end > start {
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	// Truncated output: balance the brackets and retry.
	candidate := repairBrackets(s[start:])
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}
	return "", false
}

// ParseInto cleans raw and unmarshals it into out.
func ParseInto(raw string, out any) bool {
	cleaned, ok := CleanJSON(raw)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(cleaned), out) == nil
}

// repairBrackets appends the closers for any unclosed braces or brackets,
// first terminating an unclosed string literal.
func repairBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, ch)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if inString {
		out += `"`
	}
	// Drop a trailing comma left by truncation.
	trimmed := strings.TrimRight(out, " \t\n\r")
	if strings.HasSuffix(trimmed, ",") {
		out = strings.TrimSuffix(trimmed, ",")
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}
