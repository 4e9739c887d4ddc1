package core

// StepStatus represents the outcome of a recorded action
type StepStatus int

const (
	StatusPending StepStatus = iota // Before-notification seen, no result yet
	StatusPassed                    // Completed successfully
	StatusFailed                    // Expected condition not met (image missing, wait timed out)
	StatusErrored                   // Unexpected error (transport, bad argument)
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusErrored
}

// StatusFromError classifies an action error into a step status.
func StatusFromError(err error) StepStatus {
	switch CategoryOf(err) {
	case ErrCategoryNone:
		return StatusPassed
	case ErrCategoryNotFound, ErrCategoryTimeout:
		return StatusFailed
	default:
		return StatusErrored
	}
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone      ErrorCategory = iota // No error
	ErrCategoryTransport                      // adb unreachable, command failed, malformed output
	ErrCategoryNotFound                       // Image not found within timeout
	ErrCategoryTimeout                        // Wait condition timed out
	ErrCategoryArgument                       // Malformed call
	ErrCategoryFormat                         // Unparsable matcher payload
	ErrCategoryUnknown                        // Not an ExecutionError
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryArgument:
		return "argument"
	case ErrCategoryFormat:
		return "format"
	default:
		return "unknown"
	}
}
