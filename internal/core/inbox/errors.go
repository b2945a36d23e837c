package inbox

import (
	"errors"
	"fmt"
)

// ErrMessageNotFound is returned when an ID is not in the inbox
var ErrMessageNotFound = errors.New("message not found")

// ErrAmbiguousID is returned when a short ID matches more than one message
var ErrAmbiguousID = errors.New("ambiguous message id")

// ErrInvalidTransition is returned when a lifecycle transition is not allowed
type ErrInvalidTransition struct {
	From State
	To   State
}

// Error implements the error interface
func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}
