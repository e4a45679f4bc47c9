package intake

import "errors"

var (
	// ErrUnknownField is returned when a wire key does not name a field.
	ErrUnknownField = errors.New("intake: unknown field")

	// ErrFieldType is returned when a value cannot be stored in the field.
	ErrFieldType = errors.New("intake: value does not match field type")

	// ErrRequiredItem is returned when removing the mandatory line item is attempted.
	ErrRequiredItem = errors.New("intake: required service cannot be removed")

	// ErrComplete is returned for any mutation after the wizard finished.
	ErrComplete = errors.New("intake: wizard is complete")

	// ErrFrozen is returned for record edits once payment has started.
	ErrFrozen = errors.New("intake: record is frozen for payment")

	// ErrValidation is returned when the current step has unanswered fields.
	ErrValidation = errors.New("intake: step has validation errors")

	// ErrSubmitInFlight is returned when a submission is already pending.
	ErrSubmitInFlight = errors.New("intake: submission already in progress")

	// ErrSubmissionFailed wraps gateway failures during submit.
	ErrSubmissionFailed = errors.New("intake: submission failed")

	// ErrPaymentInProgress is returned when leaving the payment step is attempted.
	ErrPaymentInProgress = errors.New("intake: payment in progress")

	// ErrInvalidStep is returned for out of range or forward step jumps.
	ErrInvalidStep = errors.New("intake: invalid step")

	// ErrInvalidTransition is returned when an event does not apply to the current state.
	ErrInvalidTransition = errors.New("intake: invalid transition")

	// ErrNoToken is returned when capture is attempted before authorization.
	ErrNoToken = errors.New("intake: no authorization token")

	// ErrCaptureLimit is returned once the capture attempt cap is exhausted.
	ErrCaptureLimit = errors.New("intake: capture attempt limit reached")
)

// SubmitRetryMessage is the banner shown after any submission failure.
const SubmitRetryMessage = "We couldn't save your information. Please check your connection and try again."

// CaptureRetryMessage is shown when the payment widget reports a non-success status.
const CaptureRetryMessage = "Your payment could not be completed. Please check your card details and try again."
