package say

import (
	"errors"
	"fmt"
)

// Error codes surfaced to the user. JSON mode emits the code verbatim;
// human mode prints the message.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeNoSamples         = "NO_SAMPLES"
	CodeDeviceUnavailable = "DEVICE_UNAVAILABLE"
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodePersistFailed     = "PERSIST_FAILED"
	CodeInterrupted       = "INTERRUPTED"
)

// Error carries a stable code alongside the user-facing message.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or "" when err carries none.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
