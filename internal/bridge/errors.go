package bridge

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-txbridge/internal/protocol"
)

// Error is a failure that crosses the bridge boundary as a (code, message)
// pair. Cause keeps the underlying error for logs and errors.Is.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// detail is the message sent to callers; it includes the cause text so the
// remote side can tell a missing file from a decoder fault.
func (e *Error) detail() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// failure converts err into a response. Anything that is not an *Error is
// reported as internal.
func failure(requestID string, err error) protocol.Response {
	var be *Error
	if errors.As(err, &be) {
		return protocol.Failure(requestID, be.Code, be.detail())
	}
	return protocol.Failure(requestID, protocol.CodeInternal, err.Error())
}
