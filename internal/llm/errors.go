package llm

import "fmt"

// APICallError represents a failed call to the text generation service
type APICallError struct {
	Message string
	Cause   error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("API call failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("API call failed: %s", e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}

// ParseError represents a model response that could not be turned into JSON
type ParseError struct {
	Message string
	Snippet string
	Cause   error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error: %s", e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Snippet != "" {
		msg = fmt.Sprintf("%s (response: %q)", msg, e.Snippet)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
