package orders

import "errors"

var (
	// ErrOrderNotFound is returned when an order id is unknown.
	ErrOrderNotFound = errors.New("orders: order not found")

	// ErrInvalidSubmission is returned when the intake fails server side validation.
	ErrInvalidSubmission = errors.New("orders: intake is incomplete")

	// ErrRequiredServiceMissing is returned when the selection lacks the mandatory service.
	ErrRequiredServiceMissing = errors.New("orders: required service missing from selection")

	// ErrSubmissionInFlight is returned when the same idempotency key is being processed.
	ErrSubmissionInFlight = errors.New("orders: submission already in progress")

	// ErrVelocityExceeded is returned when an email submits too often.
	ErrVelocityExceeded = errors.New("orders: too many submissions")

	// ErrAuthorizationFailed is returned when the payment provider refuses to mint a token.
	ErrAuthorizationFailed = errors.New("orders: payment authorization failed")

	// ErrNotCaptured is returned when confirmation arrives but the provider reports no capture.
	ErrNotCaptured = errors.New("orders: payment not captured")
)
