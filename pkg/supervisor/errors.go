package supervisor

import (
	"errors"

	"github.com/morezero/cluster-supervisor/pkg/message"
	"github.com/morezero/cluster-supervisor/pkg/registry"
)

// Protocol error codes.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotAllowed      = "NOT_ALLOWED"
	CodeNotFound        = "NOT_FOUND"
	CodeVersionRejected = "VERSION_REJECTED"
	CodeInternal        = "INTERNAL_ERROR"
)

// ProtocolError is a structured error from a request handler. It is logged
// and counted; it never crosses the wire.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(code, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// classify wraps err in a ProtocolError with a code derived from its cause.
func classify(err error) *ProtocolError {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	code := CodeInternal
	switch {
	case errors.Is(err, registry.ErrVersionRejected):
		code = CodeVersionRejected
	case errors.Is(err, registry.ErrInvalidType),
		errors.Is(err, registry.ErrNoID),
		errors.Is(err, message.ErrFieldType):
		code = CodeInvalidArgument
	}
	return &ProtocolError{Code: code, Message: err.Error(), Err: err}
}

// ErrorCode returns the ProtocolError code of err, or "" if it has none.
func ErrorCode(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
