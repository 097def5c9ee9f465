package settlement

import (
	"errors"
	"fmt"
)

// ErrInvalidMatch is returned when the matched-trade event violates the
// call contract (non-positive quantity or price, mismatched sides or
// symbols). Nothing is written to the store in that case.
var ErrInvalidMatch = errors.New("invalid match parameters")

// ConsistencyError reports a settlement that was aborted because the store
// state contradicts an upstream invariant: unknown order, account or
// symbol, an order already in a terminal status, or a sell that would
// drive a holding negative. It is not retryable; retrying would fail the
// same way and the condition indicates a bug upstream of settlement.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("settlement consistency violation: %s", e.Reason)
}

func consistencyErrorf(format string, args ...interface{}) error {
	return &ConsistencyError{Reason: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether the caller may safely re-submit the same
// match. A failed settlement never partially commits, so any transient
// store failure is retryable; contract violations and consistency
// failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidMatch) {
		return false
	}
	var ce *ConsistencyError
	return !errors.As(err, &ce)
}
