package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyOutput is returned when the host produced only whitespace.
	ErrEmptyOutput = errors.New("empty output")

	// ErrNoObject is returned when no brace-delimited candidate exists.
	ErrNoObject = errors.New("no JSON object found")
)

// Candidate is a decoded JSON value that has not been validated yet.
type Candidate any

// Extract decodes raw host output into a candidate value. It strips a single
// enclosing fenced block, attempts a direct decode, and on failure retries
// once with the substring between the first '{' and the last '}'.
func Extract(raw string) (Candidate, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, ErrEmptyOutput
	}
	cleaned = stripFence(cleaned)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, ErrNoObject
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return v, nil
}

// stripFence removes one ``` delimiter pair when it encloses the whole text.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
