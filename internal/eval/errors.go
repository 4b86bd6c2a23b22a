package eval

import "errors"

// ParseError marks a model response that could not be interpreted as an
// evaluation. The attempt's error state is already persisted when this
// surfaces, so callers report it rather than retry.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// IsParse reports whether err is a ParseError anywhere in its chain.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
