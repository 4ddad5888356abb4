package eventbus

import "errors"

// ErrInvalidContext is returned when an event's ContextFrame fails
// validation.
var ErrInvalidContext = errors.New("invalid context")
