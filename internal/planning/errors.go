package planning

import "fmt"

// ValidationError represents model output that parsed but broke a structural rule
type ValidationError struct {
	Stage   int
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("stage %d validation error", e.Stage)
	if e.Field != "" {
		msg = fmt.Sprintf("%s in %s", msg, e.Field)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
