// Package llm - recover.go pulls JSON out of free-form model responses.
package llm

import (
	"encoding/json"
	"strings"
)

// RecoverRaw returns the JSON payload embedded in a model response.
//
// Three tiers are tried in order:
//  1. the whole response parses as JSON
//  2. the first balanced {...} or [...] span that parses
//  3. the same two checks after blank lines are stripped
//
// A *ParseError is returned when every tier fails.
func RecoverRaw(text string) (json.RawMessage, error) {
	if raw, ok := recoverFrom(text); ok {
		return raw, nil
	}
	if raw, ok := recoverFrom(stripBlankLines(text)); ok {
		return raw, nil
	}
	return nil, &ParseError{Message: "no JSON value found in model response", Snippet: snippet(text)}
}

// RecoverJSON applies RecoverRaw and decodes the result generically.
// Objects decode to map[string]any and arrays to []any.
func RecoverJSON(text string) (any, error) {
	raw, err := RecoverRaw(text)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ParseError{Message: "failed to decode recovered JSON", Snippet: snippet(text), Cause: err}
	}
	return v, nil
}

// RecoverJSONInto applies RecoverRaw and decodes the result into target.
func RecoverJSONInto(text string, target any) error {
	raw, err := RecoverRaw(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &ParseError{Message: "recovered JSON does not match expected shape", Snippet: snippet(text), Cause: err}
	}
	return nil
}

func recoverFrom(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), true
	}

	for start := 0; start < len(trimmed); {
		open := strings.IndexAny(trimmed[start:], "{[")
		if open < 0 {
			return nil, false
		}
		open += start
		if end := balancedEnd(trimmed, open); end > open {
			candidate := trimmed[open : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), true
			}
		}
		start = open + 1
	}
	return nil, false
}

// balancedEnd returns the index of the bracket closing the one at open, or -1.
// Brackets inside string literals are ignored.
func balancedEnd(s string, open int) int {
	var stack []byte
	inString := false
	escaped := false

	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

func stripBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func snippet(text string) string {
	const limit = 200
	text = strings.TrimSpace(text)
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
