package llm

import (
	"errors"
	"fmt"
)

// TransportError marks failures to reach the model endpoint or non-success
// HTTP statuses. It is surfaced to the operator as a persistent error state
// and never auto-retried.
type TransportError struct {
	Provider string
	Status   int // 0 when the endpoint was unreachable
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s endpoint returned status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s endpoint unreachable: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
