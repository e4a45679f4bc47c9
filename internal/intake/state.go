package intake

import "fmt"

// WizardState is the navigation and lifecycle state of one wizard run.
//
// AuthorizationToken and RecordID are produced together by the submission
// gateway, so they are both empty or both set. CurrentStep == StepPayment
// implies both are set. IsComplete is terminal.
type WizardState struct {
	CurrentStep        int              `json:"current_step"`
	Errors             ValidationErrors `json:"errors"`
	IsSubmitting       bool             `json:"is_submitting"`
	SubmitError        string           `json:"submit_error,omitempty"`
	AuthorizationToken string           `json:"authorization_token,omitempty"`
	RecordID           string           `json:"record_id,omitempty"`
	IsComplete         bool             `json:"is_complete"`
	CaptureError       string           `json:"capture_error,omitempty"`
	CaptureAttempts    int              `json:"capture_attempts"`
	ConfirmationError  string           `json:"confirmation_error,omitempty"`
}

// NewState returns the state of a freshly mounted wizard.
func NewState() WizardState {
	return WizardState{CurrentStep: StepIdentity, Errors: ValidationErrors{}}
}

// Clone returns a copy whose error map does not alias s.
func (s WizardState) Clone() WizardState {
	out := s
	out.Errors = s.Errors.Clone()
	return out
}

// Check verifies the structural invariants.
func (s WizardState) Check() error {
	if !ValidStep(s.CurrentStep) {
		return fmt.Errorf("%w: step %d", ErrInvalidStep, s.CurrentStep)
	}
	if (s.AuthorizationToken == "") != (s.RecordID == "") {
		return fmt.Errorf("%w: token and record id must be set together", ErrInvalidTransition)
	}
	if s.CurrentStep == StepPayment && s.AuthorizationToken == "" {
		return fmt.Errorf("%w: payment step without authorization", ErrInvalidTransition)
	}
	if s.IsComplete && s.CurrentStep != StepPayment {
		return fmt.Errorf("%w: complete outside payment step", ErrInvalidTransition)
	}
	return nil
}

// Event is an input to Reduce.
type Event interface {
	eventName() string
}

// EventAdvance asks to move from the current step to the next one. Errors is
// the validation result for the current step.
type EventAdvance struct{ Errors ValidationErrors }

// EventBack asks to return to the previous step.
type EventBack struct{}

// EventJump asks to revisit an earlier (or the current) step.
type EventJump struct{ Step int }

// EventSubmitStart begins the step 5 submission. Errors is the validation
// result for every data collection step.
type EventSubmitStart struct{ Errors ValidationErrors }

// EventSubmitOK records a successful submission.
type EventSubmitOK struct {
	RecordID           string
	AuthorizationToken string
}

// EventSubmitFail records a failed submission.
type EventSubmitFail struct{ Message string }

// EventCaptureFail records a non-success capture outcome.
type EventCaptureFail struct{ Message string }

// EventConfirmed records the outcome of the post-capture confirmation call.
type EventConfirmed struct{ Err string }

// EventCaptureOK records a successful capture and completes the wizard.
type EventCaptureOK struct{}

func (EventAdvance) eventName() string     { return "advance" }
func (EventBack) eventName() string        { return "back" }
func (EventJump) eventName() string        { return "jump" }
func (EventSubmitStart) eventName() string { return "submit_start" }
func (EventSubmitOK) eventName() string    { return "submit_ok" }
func (EventSubmitFail) eventName() string  { return "submit_fail" }
func (EventCaptureFail) eventName() string { return "capture_fail" }
func (EventConfirmed) eventName() string   { return "confirmed" }
func (EventCaptureOK) eventName() string   { return "capture_ok" }

// Reduce applies ev to s. It never mutates s. When the event is refused the
// returned error says why; the returned state then carries only the changes
// the refusal itself implies (recorded validation errors), otherwise it equals s.
func Reduce(s WizardState, ev Event) (WizardState, error) {
	next := s.Clone()
	if next.Errors == nil {
		next.Errors = ValidationErrors{}
	}
	if s.IsComplete {
		return next, ErrComplete
	}

	switch e := ev.(type) {
	case EventAdvance:
		if s.CurrentStep >= StepConsent {
			return next, fmt.Errorf("%w: advance from step %d", ErrInvalidTransition, s.CurrentStep)
		}
		if !e.Errors.Empty() {
			next.Errors = e.Errors.Clone()
			return next, ErrValidation
		}
		next.Errors = ValidationErrors{}
		next.CurrentStep++
		return next, nil

	case EventBack:
		if s.CurrentStep == StepPayment {
			return next, ErrPaymentInProgress
		}
		if s.CurrentStep <= StepIdentity {
			return next, fmt.Errorf("%w: no step before %d", ErrInvalidStep, s.CurrentStep)
		}
		if s.IsSubmitting {
			return next, ErrSubmitInFlight
		}
		next.CurrentStep--
		next.Errors = ValidationErrors{}
		return next, nil

	case EventJump:
		if s.CurrentStep == StepPayment {
			return next, ErrPaymentInProgress
		}
		if e.Step < FirstStep || e.Step > s.CurrentStep {
			return next, fmt.Errorf("%w: jump to %d from %d", ErrInvalidStep, e.Step, s.CurrentStep)
		}
		if s.IsSubmitting {
			return next, ErrSubmitInFlight
		}
		if e.Step != s.CurrentStep {
			next.Errors = ValidationErrors{}
		}
		next.CurrentStep = e.Step
		return next, nil

	case EventSubmitStart:
		if s.CurrentStep != StepConsent {
			return next, fmt.Errorf("%w: submit from step %d", ErrInvalidTransition, s.CurrentStep)
		}
		if s.IsSubmitting {
			return next, ErrSubmitInFlight
		}
		if !e.Errors.Empty() {
			next.Errors = e.Errors.Clone()
			next.CurrentStep = e.Errors.Fields()[0].Step()
			return next, ErrValidation
		}
		next.Errors = ValidationErrors{}
		next.IsSubmitting = true
		next.SubmitError = ""
		return next, nil

	case EventSubmitOK:
		if !s.IsSubmitting || s.CurrentStep != StepConsent {
			return next, fmt.Errorf("%w: submit result without pending submission", ErrInvalidTransition)
		}
		if e.RecordID == "" || e.AuthorizationToken == "" {
			return next, fmt.Errorf("%w: record id and authorization token are both required", ErrInvalidTransition)
		}
		next.IsSubmitting = false
		next.SubmitError = ""
		next.RecordID = e.RecordID
		next.AuthorizationToken = e.AuthorizationToken
		next.CurrentStep = StepPayment
		return next, nil

	case EventSubmitFail:
		if !s.IsSubmitting {
			return next, fmt.Errorf("%w: submit failure without pending submission", ErrInvalidTransition)
		}
		next.IsSubmitting = false
		next.SubmitError = e.Message
		if next.SubmitError == "" {
			next.SubmitError = SubmitRetryMessage
		}
		return next, nil

	case EventCaptureFail:
		if s.CurrentStep != StepPayment {
			return next, fmt.Errorf("%w: capture outside payment step", ErrInvalidTransition)
		}
		next.CaptureAttempts++
		next.CaptureError = e.Message
		if next.CaptureError == "" {
			next.CaptureError = CaptureRetryMessage
		}
		return next, nil

	case EventConfirmed:
		if s.CurrentStep != StepPayment {
			return next, fmt.Errorf("%w: confirmation outside payment step", ErrInvalidTransition)
		}
		next.ConfirmationError = e.Err
		return next, nil

	case EventCaptureOK:
		if s.CurrentStep != StepPayment {
			return next, fmt.Errorf("%w: capture outside payment step", ErrInvalidTransition)
		}
		next.CaptureAttempts++
		next.CaptureError = ""
		next.IsComplete = true
		return next, nil
	}
	return next, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
}
