package domain

import "errors"

// Error kinds surfaced to callers. Concrete errors wrap one of these so
// callers branch with errors.Is.
var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation error")

	// ErrReference indicates a missing account, category or draft.
	ErrReference = errors.New("reference error")

	// ErrConsistency indicates a currency or category-kind mismatch.
	ErrConsistency = errors.New("consistency error")

	// ErrUnsupported indicates an operation this engine does not perform (transfers).
	ErrUnsupported = errors.New("unsupported operation")

	// ErrAmountNotDetected is the only hard failure of free-text capture.
	ErrAmountNotDetected = errors.New("amount not detected")

	// ErrDraftNotEditable is returned for any operation on a draft that is
	// missing or no longer in the draft state.
	ErrDraftNotEditable = errors.New("draft not found in draft state")

	// ErrCompensationFailed marks a failed balance rollback after a failed
	// record write. It needs out-of-band reconciliation.
	ErrCompensationFailed = errors.New("balance compensation failed")
)

// IsCallerError reports whether err belongs to the caller-correctable taxonomy
// rather than an infrastructure failure.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrReference) ||
		errors.Is(err, ErrConsistency) ||
		errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrAmountNotDetected) ||
		errors.Is(err, ErrDraftNotEditable)
}
