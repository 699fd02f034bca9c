package calendar

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized is returned when a query or write is attempted before the
// gate has reached the Authorized state.
var ErrNotAuthorized = errors.New("calendar access not authorized")

// ConfigurationError reports a missing required configuration key. It is
// fatal to the authorize flow: no consent prompt is shown.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration key %q", e.Key)
}

// PersistenceError reports that the backing store rejected an event save. It
// wraps the store's underlying error; the save is not retried.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save event: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
