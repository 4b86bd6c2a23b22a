package session

import "errors"

// ErrBusy is returned when a model call is already in flight. Callers must
// surface it and let the operator wait; requests are never queued.
var ErrBusy = errors.New("a model call is already in flight")

// MissingPreconditionError rejects an operation locally, before any network
// call. No log entry is produced for a rejected attempt.
type MissingPreconditionError struct {
	Reason string
}

func (e *MissingPreconditionError) Error() string { return e.Reason }

// IsMissingPrecondition reports whether err is a local precondition failure.
func IsMissingPrecondition(err error) bool {
	var mp *MissingPreconditionError
	return errors.As(err, &mp)
}
