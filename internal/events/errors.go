package events

import "errors"

var (
	// ErrPermanent marks failures that redelivery cannot fix.
	ErrPermanent = errors.New("events: permanent failure")
	// ErrNoHandler indicates an event type nobody subscribed to.
	ErrNoHandler = errors.New("events: no handler registered")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// Permanent wraps err so IsPermanent reports true while errors.Is still
// matches the original cause.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
