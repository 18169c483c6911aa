package api

import (
	"errors"
	"fmt"
)

// ErrUnsupportedProvider is returned when a call names a provider no
// processor is registered for. The call is never silently dropped.
var ErrUnsupportedProvider = errors.New("unsupported call provider")

// RequestError reports that a request could not be constructed (missing
// credentials, missing device identifier). The operation was never attempted.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("unable to create request: %s", e.Message)
}

// ResponseError reports a transport or payload failure. The original error
// message is preserved; callers receive this through the normal result path,
// never as a panic.
type ResponseError struct {
	Message string
	Cause   error
}

func (e *ResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unable to process response: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("unable to process response: %s", e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.Cause
}

// requestErr builds a RequestError.
func requestErr(format string, args ...any) error {
	return &RequestError{Message: fmt.Sprintf(format, args...)}
}

// responseErr builds a ResponseError wrapping cause.
func responseErr(cause error, format string, args ...any) error {
	return &ResponseError{Message: fmt.Sprintf(format, args...), Cause: cause}
}
