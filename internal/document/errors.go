package document

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrRunInProgress is returned when a run is already processing the document
	ErrRunInProgress = errors.New("document is already being processed")
	// ErrAlreadyLinked is wrapped by the ValidationError returned when a
	// document already has a ledger bill
	ErrAlreadyLinked = errors.New("document already has a ledger bill")
	// ErrLedgerUnavailable is returned when no ledger client is configured
	ErrLedgerUnavailable = errors.New("ledger is not configured")
)

// ValidationError is a user-facing rejection of an operation. It is raised
// before any state is written.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
