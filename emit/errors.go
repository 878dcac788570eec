package emit

import (
	"errors"
	"fmt"
)

// ErrorType classifies emission failures.
type ErrorType uint8

const (
	// InvalidInputType: a method value is not a graph, or a graph uses a
	// feature the target cannot represent (mutated buffers).
	InvalidInputType ErrorType = iota + 1
	// InvalidInput: options or graphs are malformed.
	InvalidInput
	// NotSupported: a value has a type the program format cannot hold.
	NotSupported
	// InternalError: the lowering engine reached an inconsistent state.
	InternalError
)

func (t ErrorType) String() string {
	switch t {
	case InvalidInputType:
		return "INVALID_INPUT_TYPE"
	case InvalidInput:
		return "INVALID_INPUT"
	case NotSupported:
		return "NOT_SUPPORTED"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return fmt.Sprintf("ErrorType(%d)", t)
	}
}

// ExportError is the error type returned by emission.
type ExportError struct {
	Type ErrorType
	Msg  string
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("[%s]: %s", e.Type, e.Msg)
}

func errorf(t ErrorType, format string, args ...any) *ExportError {
	return &ExportError{Type: t, Msg: fmt.Sprintf(format, args...)}
}

// IsErrorType reports whether err is, or wraps, an ExportError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var ee *ExportError
	return errors.As(err, &ee) && ee.Type == t
}
