package raid

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the Engine wraps exactly one.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrMembership   = errors.New("membership")
	ErrValidation   = errors.New("validation")
	ErrAlreadyDone  = errors.New("already done")
)

// Error carries a diagnostic reason. Reason text is not a stable contract;
// match on the kind with errors.Is.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string { return e.Reason }
func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Reason extracts the diagnostic text from err.
func Reason(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
