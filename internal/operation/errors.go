package operation

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("operation: invalid input")
	// ErrActive rejects Start while another operation is in progress.
	ErrActive = errors.New("operation: another operation is active")
	// ErrNoActive means there is no operation to apply the event to.
	ErrNoActive = errors.New("operation: no active operation")
	// ErrBusy rejects events while a transition is in flight.
	ErrBusy = errors.New("operation: transition in progress")
	// ErrNotConfirming rejects Confirm outside the confirmation step.
	ErrNotConfirming = errors.New("operation: nothing to confirm")
	// ErrAwaitingConfirmation rejects field input once every field is collected.
	ErrAwaitingConfirmation = errors.New("operation: awaiting confirmation")
	// ErrStaleConfirmation rejects a confirm carrying an outdated idempotency key.
	ErrStaleConfirmation = errors.New("operation: stale confirmation")
	// ErrUnknownKind rejects Start for None or an undefined kind.
	ErrUnknownKind = errors.New("operation: unknown kind")
	// ErrOrderIDRequired rejects order cancellation without an explicit id.
	ErrOrderIDRequired = errors.New("operation: order id required")
	// ErrOrderNotFound means the order is not an active order of the user.
	ErrOrderNotFound = errors.New("operation: order not found")
)

// ValidationError reports a rejected field value. State is unchanged when it is returned.
type ValidationError struct {
	Field Field
	Hint  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("operation: invalid %s: %s", e.Field, e.Hint)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Code returns a stable error code for handler logs.
func (e *ValidationError) Code() string { return "VALIDATION" }

func invalid(field Field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Hint: fmt.Sprintf(format, args...)}
}
