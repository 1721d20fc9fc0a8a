package appointment

import (
	"errors"
	"fmt"
)

// Error kinds returned by Service operations. Callers match them with
// errors.Is; the message of the concrete *OpError is fit for end users.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service error")
)

type OpError struct {
	Kind    error
	Message string
	Err     error
}

func (e *OpError) Error() string {
	return e.Message
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(kind, cause error, format string, args ...any) *OpError {
	return &OpError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf names the error kind for transport layers, "internal" when err
// is not an *OpError.
func KindOf(err error) string {
	var op *OpError
	if !errors.As(err, &op) {
		return "internal"
	}
	switch op.Kind {
	case ErrNotFound:
		return "not_found"
	case ErrValidation:
		return "validation"
	case ErrConfiguration:
		return "configuration"
	case ErrConflict:
		return "conflict"
	case ErrExternalService:
		return "external_service"
	default:
		return "internal"
	}
}
