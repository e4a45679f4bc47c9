package intake

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

const (
	// DefaultReceiptPath is where the client lands after completion.
	DefaultReceiptPath = "/receipt"
	// DefaultRedirectDelay is how long the success screen stays up.
	DefaultRedirectDelay = 2 * time.Second
)

// Observer receives lifecycle measurements. Implementations must be cheap.
type Observer interface {
	ObserveStep(from, to int)
	ObserveSubmit(outcome string, seconds float64)
	ObserveCapture(outcome string)
	ObserveConfirmation(outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveStep(int, int)          {}
func (noopObserver) ObserveSubmit(string, float64) {}
func (noopObserver) ObserveCapture(string)         {}
func (noopObserver) ObserveConfirmation(string)    {}

// Options configures a Controller. Only Catalog has a meaningful default;
// nil collaborators degrade to no-ops (a nil Submitter fails every submit).
type Options struct {
	SessionID          string
	Catalog            *Catalog
	Submitter          SubmissionGateway
	Confirmer          ConfirmationGateway
	Widget             CaptureWidget
	Notifier           Notifier
	Navigator          Navigator
	Observer           Observer
	Logger             *logging.Logger
	ReceiptPath        string
	RedirectDelay      time.Duration
	MaxCaptureAttempts int

	// AfterFunc schedules the receipt navigation. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, fn func())
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller drives one wizard run. It is safe for concurrent use: state is
// guarded by a mutex and network calls run outside it, with IsSubmitting
// acting as the lock against concurrent submissions.
type Controller struct {
	mu sync.Mutex

	sessionID     string
	catalog       *Catalog
	fields        *FieldStore
	state         WizardState
	capture       *CaptureAdapter
	submitter     SubmissionGateway
	confirmer     ConfirmationGateway
	notifier      Notifier
	navigator     Navigator
	observer      Observer
	logger        *logging.Logger
	receiptPath   string
	redirectDelay time.Duration
	afterFunc     func(time.Duration, func())
	now           func() time.Time

	confirming bool
	navigated  bool
}

// NewController mounts a fresh wizard with default answers.
func NewController(opts Options) *Controller {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	return newController(opts, NewState(), NewRecord(opts.Catalog))
}

// Restore rebuilds a controller from persisted state. A submission that was
// in flight when the state was saved is treated as lost and may be retried.
func Restore(opts Options, state WizardState, rec IntakeRecord) (*Controller, error) {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if err := state.Check(); err != nil {
		return nil, err
	}
	state = state.Clone()
	state.IsSubmitting = false
	c := newController(opts, state, rec)
	c.capture.attempts = state.CaptureAttempts
	c.navigated = state.IsComplete
	return c, nil
}

func newController(opts Options, state WizardState, rec IntakeRecord) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Navigator == nil {
		opts.Navigator = discardNavigator{}
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.ReceiptPath == "" {
		opts.ReceiptPath = DefaultReceiptPath
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = DefaultRedirectDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		sessionID:     opts.SessionID,
		catalog:       opts.Catalog,
		fields:        NewFieldStore(rec, opts.Catalog, opts.Notifier),
		state:         state,
		submitter:     opts.Submitter,
		confirmer:     opts.Confirmer,
		notifier:      opts.Notifier,
		navigator:     opts.Navigator,
		observer:      opts.Observer,
		logger:        opts.Logger,
		receiptPath:   opts.ReceiptPath,
		redirectDelay: opts.RedirectDelay,
		afterFunc:     opts.AfterFunc,
		now:           opts.Now,
	}
	c.fields.ReplaceErrors(state.Errors)
	c.capture = NewCaptureAdapter(opts.Widget, opts.MaxCaptureAttempts, c.captureSucceeded, c.captureFailed)
	return c
}

// SessionID identifies the run.
func (c *Controller) SessionID() string { return c.sessionID }

// Catalog returns the price list the run is priced against.
func (c *Controller) Catalog() *Catalog { return c.catalog }

// Capture exposes the payment capture adapter.
func (c *Controller) Capture() *CaptureAdapter { return c.capture }

// State returns a snapshot of the wizard state.
func (c *Controller) State() WizardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Record returns a snapshot of the answers.
func (c *Controller) Record() IntakeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fields.Record()
}

// Total re-derives the price of the current selection.
func (c *Controller) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Total(c.fields.record.Scheduling.SelectedServices)
}

// Lines returns the selected catalog items.
func (c *Controller) Lines() []LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Lines(c.fields.record.Scheduling.SelectedServices)
}

// Set stores a field value and clears its error.
func (c *Controller) Set(f Field, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if err := c.fields.Set(f, value); err != nil {
		return err
	}
	c.state.Errors = c.fields.Errors()
	return nil
}

// Toggle adds or removes value in a multi-select field.
func (c *Controller) Toggle(f Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if err := c.fields.Toggle(f, value); err != nil {
		return err
	}
	c.state.Errors = c.fields.Errors()
	return nil
}

// Next validates the current step and advances when it passes.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := Validate(c.state.CurrentStep, c.fields.record)
	next, err := Reduce(c.state, EventAdvance{Errors: errs})
	c.apply(next)
	if errors.Is(err, ErrValidation) {
		NotifyValidation(c.notifier, errs)
	}
	return err
}

// Previous returns to the prior step. Not available once payment started.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := Reduce(c.state, EventBack{})
	c.apply(next)
	return err
}

// JumpTo revisits step when it is not ahead of the current one.
func (c *Controller) JumpTo(step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := Reduce(c.state, EventJump{Step: step})
	c.apply(next)
	return err
}

// Submit validates steps 1 through 5, freezes the answers and sends them to
// the submission gateway. An answer cleared after its step was passed sends
// the wizard back to the first failing step. While a submission is pending further calls return
// ErrSubmitInFlight without touching the gateway. Failures leave the wizard
// on step 5 with SubmitError set. Once dispatched the gateway call outlives
// cancellation of ctx.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	errs := ValidateAll(c.fields.record)
	next, err := Reduce(c.state, EventSubmitStart{Errors: errs})
	c.apply(next)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, ErrValidation) {
			NotifyValidation(c.notifier, errs)
		}
		return err
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	start := time.Now()
	res, callErr := c.submit(context.WithoutCancel(ctx), snapshot)
	elapsed := time.Since(start).Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()
	if callErr != nil {
		c.logger.Error("intake submission failed", "error", callErr, "session_id", c.sessionID)
		next, _ := Reduce(c.state, EventSubmitFail{Message: SubmitRetryMessage})
		c.apply(next)
		c.notifier.Notify(NotifyError, SubmitRetryMessage)
		c.observer.ObserveSubmit("failed", elapsed)
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, callErr)
	}

	next, err = Reduce(c.state, EventSubmitOK{RecordID: res.RecordID, AuthorizationToken: res.AuthorizationToken})
	if err != nil {
		return err
	}
	c.apply(next)
	c.observer.ObserveSubmit("succeeded", elapsed)
	c.logger.Info("intake submitted", "session_id", c.sessionID, "record_id", res.RecordID, "total_cents", snapshot.TotalCents)
	c.notifier.Notify(NotifySuccess, "Your information has been saved. Complete payment to finish.")
	return nil
}

func (c *Controller) submit(ctx context.Context, snapshot IntakeSnapshot) (SubmitResult, error) {
	if c.submitter == nil {
		return SubmitResult{}, errors.New("submission gateway not configured")
	}
	res, err := c.submitter.SubmitIntake(ctx, snapshot)
	if err != nil {
		return SubmitResult{}, err
	}
	if !res.Success {
		if res.Error != "" {
			return SubmitResult{}, errors.New(res.Error)
		}
		return SubmitResult{}, errors.New("backend rejected submission")
	}
	if res.RecordID == "" || res.AuthorizationToken == "" {
		return SubmitResult{}, errors.New("backend response missing record id or authorization token")
	}
	return res, nil
}

// Snapshot freezes the current answers into a submission payload.
func (c *Controller) Snapshot() IntakeSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() IntakeSnapshot {
	rec := c.fields.Record()
	selected := rec.Scheduling.SelectedServices
	return IntakeSnapshot{
		Record:         rec,
		LineItems:      c.catalog.Lines(selected),
		TotalCents:     c.catalog.Total(selected),
		IdempotencyKey: IdempotencyKey(c.sessionID, rec),
		SubmittedAt:    c.now().UTC(),
	}
}

// MountCapture initializes the capture widget once an authorization token exists.
func (c *Controller) MountCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsComplete {
		c.mu.Unlock()
		return ErrComplete
	}
	token := c.state.AuthorizationToken
	c.mu.Unlock()
	return c.capture.Mount(ctx, token)
}

func (c *Controller) captureFailed(ctx context.Context, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := Reduce(c.state, EventCaptureFail{Message: message})
	if err != nil {
		c.logger.Warn("capture failure ignored", "error", err, "session_id", c.sessionID)
		return
	}
	c.apply(next)
	c.observer.ObserveCapture("failed")
	c.logger.Warn("payment capture failed", "session_id", c.sessionID, "record_id", c.state.RecordID, "attempts", c.state.CaptureAttempts)
	c.notifier.Notify(NotifyError, message)
}

// captureSucceeded confirms the capture with the backend, then completes the
// wizard whatever the confirmation outcome: the processor is the source of
// truth for the charge, the confirmation only flips the record status.
func (c *Controller) captureSucceeded(ctx context.Context) {
	c.mu.Lock()
	if c.state.IsComplete || c.confirming || c.state.CurrentStep != StepPayment {
		c.mu.Unlock()
		return
	}
	c.confirming = true
	recordID := c.state.RecordID
	c.mu.Unlock()

	confirmErr := c.confirm(context.WithoutCancel(ctx), recordID)
	if confirmErr != "" {
		c.logger.Error("capture confirmation failed", "error", confirmErr, "record_id", recordID, "session_id", c.sessionID)
		c.observer.ObserveConfirmation("failed")
	} else {
		c.observer.ObserveConfirmation("succeeded")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirming = false
	if next, err := Reduce(c.state, EventConfirmed{Err: confirmErr}); err == nil {
		c.apply(next)
	}
	next, err := Reduce(c.state, EventCaptureOK{})
	if err != nil {
		c.logger.Warn("capture success ignored", "error", err, "session_id", c.sessionID)
		return
	}
	c.apply(next)
	c.observer.ObserveCapture("succeeded")
	c.logger.Info("wizard complete", "session_id", c.sessionID, "record_id", recordID)
	c.notifier.Notify(NotifySuccess, "Payment successful! Redirecting to your receipt...")
	c.scheduleNavigationLocked()
}

func (c *Controller) confirm(ctx context.Context, recordID string) string {
	if c.confirmer == nil {
		return "confirmation gateway not configured"
	}
	res, err := c.confirmer.ConfirmCapture(ctx, recordID)
	switch {
	case err != nil:
		return err.Error()
	case !res.Success && res.Error != "":
		return res.Error
	case !res.Success:
		return "confirmation rejected"
	}
	return ""
}

func (c *Controller) scheduleNavigationLocked() {
	if c.navigated {
		return
	}
	c.navigated = true
	query := url.Values{}
	if c.state.RecordID != "" {
		query.Set("record_id", c.state.RecordID)
	}
	path, nav := c.receiptPath, c.navigator
	c.afterFunc(c.redirectDelay, func() { nav.NavigateTo(path, query) })
}

func (c *Controller) editableLocked() error {
	switch {
	case c.state.IsComplete:
		return ErrComplete
	case c.state.CurrentStep == StepPayment:
		return ErrFrozen
	case c.state.IsSubmitting:
		return ErrSubmitInFlight
	}
	return nil
}

func (c *Controller) apply(next WizardState) {
	from := c.state.CurrentStep
	c.state = next
	c.fields.ReplaceErrors(next.Errors)
	if next.CurrentStep != from {
		c.observer.ObserveStep(from, next.CurrentStep)
	}
}
