package submitonce

import (
	"math"
	"net/mail"
)

// SubmissionRequest describes one logical submission. RequestID is the
// idempotency key: re-submitting with the same id replays the recorded
// outcome instead of creating a second record.
type SubmissionRequest struct {
	// RequestID uniquely identifies the logical submission.
	RequestID string
	// Email is the submitter address.
	Email string
	// Amount is the submitted amount. It must be a positive finite number.
	Amount float64
}

// Validate checks the request id and the user-provided fields.
func (r SubmissionRequest) Validate() error {
	if err := ValidateRequestID(r.RequestID); err != nil {
		return err
	}

	return ValidateInput(r.Email, r.Amount)
}

// ValidateInput checks the user-provided fields before a request id exists.
// The controller runs it on Start so invalid input is rejected without
// dispatching anything.
func ValidateInput(email string, amount float64) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	return validateAmount(amount)
}

func validateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}

	return nil
}

func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return ErrAmountInvalid
	}

	return nil
}
