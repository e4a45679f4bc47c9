package intake

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubmitter struct {
	mu        sync.Mutex
	calls     []IntakeSnapshot
	result    SubmitResult
	err       error
	block     chan struct{}
	entered   chan struct{}
	callCount atomic.Int32
}

func (s *stubSubmitter) SubmitIntake(ctx context.Context, snapshot IntakeSnapshot) (SubmitResult, error) {
	s.callCount.Add(1)
	s.mu.Lock()
	s.calls = append(s.calls, snapshot)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	return s.result, s.err
}

type stubConfirmer struct {
	mu     sync.Mutex
	ids    []string
	result ConfirmResult
	err    error
}

func (s *stubConfirmer) ConfirmCapture(ctx context.Context, recordID string) (ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, recordID)
	return s.result, s.err
}

type stubHandle struct {
	mu sync.Mutex
	fn func(context.Context, CaptureResult)
}

func (h *stubHandle) OnComplete(fn func(context.Context, CaptureResult)) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

func (h *stubHandle) fire(res CaptureResult) {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	fn(context.Background(), res)
}

type stubWidget struct {
	tokens []string
	handle *stubHandle
	err    error
}

func (w *stubWidget) Initialize(ctx context.Context, token string) (CaptureHandle, error) {
	w.tokens = append(w.tokens, token)
	if w.err != nil {
		return nil, w.err
	}
	w.handle = &stubHandle{}
	return w.handle, nil
}

type navigation struct {
	path  string
	query url.Values
}

type harness struct {
	ctrl      *Controller
	submitter *stubSubmitter
	confirmer *stubConfirmer
	widget    *stubWidget
	notes     *NotificationQueue
	navs      []navigation
	delays    []time.Duration
	pending   []func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		submitter: &stubSubmitter{result: SubmitResult{Success: true, RecordID: "r1", AuthorizationToken: "t1"}},
		confirmer: &stubConfirmer{result: ConfirmResult{Success: true}},
		widget:    &stubWidget{},
		notes:     &NotificationQueue{},
	}
	h.ctrl = NewController(Options{
		SessionID: "sess-1",
		Submitter: h.submitter,
		Confirmer: h.confirmer,
		Widget:    h.widget,
		Notifier:  h.notes,
		Navigator: NavigatorFunc(func(path string, q url.Values) {
			h.navs = append(h.navs, navigation{path: path, query: q})
		}),
		AfterFunc: func(d time.Duration, fn func()) {
			h.delays = append(h.delays, d)
			h.pending = append(h.pending, fn)
		},
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return h
}

// fill answers the current step's questions.
func (h *harness) fill(t *testing.T, step int) {
	t.Helper()
	rec := completeRecord()
	for _, f := range FieldsForStep(step) {
		if f == FieldSelectedServices {
			continue
		}
		require.NoError(t, h.ctrl.Set(f, rec.Value(f)), "set %s", f)
	}
}

// advanceTo walks the wizard forward to step.
func (h *harness) advanceTo(t *testing.T, step int) {
	t.Helper()
	for h.ctrl.State().CurrentStep < step {
		h.fill(t, h.ctrl.State().CurrentStep)
		require.NoError(t, h.ctrl.Next())
	}
}

func (h *harness) toPayment(t *testing.T) {
	t.Helper()
	h.advanceTo(t, StepConsent)
	h.fill(t, StepConsent)
	require.NoError(t, h.ctrl.Submit(context.Background()))
	require.Equal(t, StepPayment, h.ctrl.State().CurrentStep)
}

func TestControllerMountDefaults(t *testing.T) {
	h := newHarness(t)
	st := h.ctrl.State()
	assert.Equal(t, StepIdentity, st.CurrentStep)
	assert.True(t, st.Errors.Empty())
	assert.False(t, st.IsComplete)

	rec := h.ctrl.Record()
	assert.Equal(t, []string{"consultation"}, rec.Scheduling.SelectedServices)
	assert.Equal(t, DefaultUrgency, rec.Scheduling.Urgency)
	assert.Equal(t, int64(2000), h.ctrl.Total())
}

func TestControllerRefusesAdvanceWithEmptyFirstName(t *testing.T) {
	h := newHarness(t)
	h.fill(t, StepIdentity)
	require.NoError(t, h.ctrl.Set(FieldFirstName, ""))

	err := h.ctrl.Next()
	require.ErrorIs(t, err, ErrValidation)
	st := h.ctrl.State()
	assert.Equal(t, StepIdentity, st.CurrentStep)
	assert.Equal(t, "First name is required", st.Errors[FieldFirstName])

	notes := h.notes.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyError, notes[0].Kind)

	require.NoError(t, h.ctrl.Set(FieldFirstName, "Ada"))
	assert.True(t, h.ctrl.State().Errors.Empty(), "editing clears the field error")
	require.NoError(t, h.ctrl.Next())
	assert.Equal(t, StepPhysiology, h.ctrl.State().CurrentStep)
}

func TestControllerPricingFollowsSelection(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Toggle(FieldSelectedServices, "meal-plan"))
	assert.Equal(t, int64(5500), h.ctrl.Total())

	require.ErrorIs(t, h.ctrl.Toggle(FieldSelectedServices, "consultation"), ErrRequiredItem)
	assert.Equal(t, []string{"consultation", "meal-plan"}, h.ctrl.Record().Scheduling.SelectedServices)
	notes := h.notes.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyError, notes[0].Kind)

	require.NoError(t, h.ctrl.Toggle(FieldSelectedServices, "meal-plan"))
	assert.Equal(t, int64(2000), h.ctrl.Total())
}

func TestControllerSubmitFailureStaysOnConsent(t *testing.T) {
	h := newHarness(t)
	h.submitter.result = SubmitResult{Success: false}
	h.advanceTo(t, StepConsent)
	h.fill(t, StepConsent)

	err := h.ctrl.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmissionFailed)
	st := h.ctrl.State()
	assert.Equal(t, StepConsent, st.CurrentStep)
	assert.NotEmpty(t, st.SubmitError)
	assert.False(t, st.IsSubmitting)
	assert.Empty(t, st.RecordID)
	assert.Empty(t, st.AuthorizationToken)

	// A transport error is handled the same way and the user may retry.
	h.submitter.err = errors.New("connection reset")
	require.ErrorIs(t, h.ctrl.Submit(context.Background()), ErrSubmissionFailed)
	h.submitter.err = nil
	h.submitter.result = SubmitResult{Success: true, RecordID: "r1", AuthorizationToken: "t1"}
	require.NoError(t, h.ctrl.Submit(context.Background()))
	assert.Empty(t, h.ctrl.State().SubmitError)
}

func TestControllerSubmitRevalidatesEarlierSteps(t *testing.T) {
	h := newHarness(t)
	h.advanceTo(t, StepConsent)
	h.fill(t, StepConsent)
	require.NoError(t, h.ctrl.Set(FieldFirstName, ""))
	h.notes.Drain()

	err := h.ctrl.Submit(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, h.submitter.callCount.Load())
	st := h.ctrl.State()
	assert.Equal(t, StepIdentity, st.CurrentStep)
	assert.Equal(t, "First name is required", st.Errors[FieldFirstName])
	assert.False(t, st.IsSubmitting)
	notes := h.notes.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "First name is required", notes[0].Message)

	require.NoError(t, h.ctrl.Set(FieldFirstName, "Ada"))
	h.advanceTo(t, StepConsent)
	require.NoError(t, h.ctrl.Submit(context.Background()))
	assert.Equal(t, StepPayment, h.ctrl.State().CurrentStep)
	require.Len(t, h.submitter.calls, 1)
	assert.Equal(t, "Ada", h.submitter.calls[0].Record.Identity.FirstName)
}

func TestControllerSubmitRejectsHalfResult(t *testing.T) {
	h := newHarness(t)
	h.submitter.result = SubmitResult{Success: true, RecordID: "r1"}
	h.advanceTo(t, StepConsent)
	h.fill(t, StepConsent)

	require.ErrorIs(t, h.ctrl.Submit(context.Background()), ErrSubmissionFailed)
	assert.Equal(t, StepConsent, h.ctrl.State().CurrentStep)
}

func TestControllerSubmitSuccessMovesToPayment(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Toggle(FieldSelectedServices, "meal-plan"))
	h.toPayment(t)

	st := h.ctrl.State()
	assert.Equal(t, "r1", st.RecordID)
	assert.Equal(t, "t1", st.AuthorizationToken)
	require.NoError(t, st.Check())

	require.Len(t, h.submitter.calls, 1)
	snap := h.submitter.calls[0]
	assert.Equal(t, int64(5500), snap.TotalCents)
	assert.Len(t, snap.LineItems, 2)
	assert.Equal(t, IdempotencyKey("sess-1", snap.Record), snap.IdempotencyKey)
	assert.Equal(t, "Ada", snap.Record.Identity.FirstName)

	require.ErrorIs(t, h.ctrl.Set(FieldFirstName, "Grace"), ErrFrozen)
	require.ErrorIs(t, h.ctrl.Previous(), ErrPaymentInProgress)
}

func TestControllerSubmitValidatesConsent(t *testing.T) {
	h := newHarness(t)
	h.advanceTo(t, StepConsent)
	require.ErrorIs(t, h.ctrl.Submit(context.Background()), ErrValidation)
	assert.Equal(t, "You must agree to the terms and conditions", h.ctrl.State().Errors[FieldAgreeToTerms])
	assert.EqualValues(t, 0, h.submitter.callCount.Load())
}

func TestControllerSubmitIsSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.advanceTo(t, StepConsent)
	h.fill(t, StepConsent)
	h.submitter.block = make(chan struct{})
	h.submitter.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Submit(context.Background()) }()
	<-h.submitter.entered

	assert.True(t, h.ctrl.State().IsSubmitting)
	require.ErrorIs(t, h.ctrl.Submit(context.Background()), ErrSubmitInFlight)
	require.ErrorIs(t, h.ctrl.Previous(), ErrSubmitInFlight)
	require.ErrorIs(t, h.ctrl.Set(FieldNotes, "late edit"), ErrSubmitInFlight)

	close(h.submitter.block)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, h.submitter.callCount.Load())
	assert.Equal(t, StepPayment, h.ctrl.State().CurrentStep)
}

func TestControllerCaptureSuccessCompletes(t *testing.T) {
	for _, confirm := range []struct {
		name   string
		result ConfirmResult
		err    error
	}{
		{name: "confirmed", result: ConfirmResult{Success: true}},
		{name: "confirmation rejected", result: ConfirmResult{Success: false, Error: "record locked"}},
		{name: "confirmation errored", err: errors.New("timeout")},
	} {
		t.Run(confirm.name, func(t *testing.T) {
			h := newHarness(t)
			h.confirmer.result, h.confirmer.err = confirm.result, confirm.err
			h.toPayment(t)
			require.NoError(t, h.ctrl.MountCapture(context.Background()))
			assert.Equal(t, []string{"t1"}, h.widget.tokens)

			h.widget.handle.fire(CaptureResult{Status: StatusSucceeded})
			h.widget.handle.fire(CaptureResult{Status: StatusSucceeded})

			assert.Equal(t, []string{"r1"}, h.confirmer.ids)
			st := h.ctrl.State()
			assert.True(t, st.IsComplete)
			if confirm.result.Success {
				assert.Empty(t, st.ConfirmationError)
			} else {
				assert.NotEmpty(t, st.ConfirmationError)
			}

			require.Len(t, h.pending, 1, "navigation scheduled once")
			assert.Equal(t, DefaultRedirectDelay, h.delays[0])
			h.pending[0]()
			require.Len(t, h.navs, 1)
			assert.Equal(t, DefaultReceiptPath, h.navs[0].path)
			assert.Equal(t, "r1", h.navs[0].query.Get("record_id"))

			require.ErrorIs(t, h.ctrl.Next(), ErrComplete)
			require.ErrorIs(t, h.ctrl.Set(FieldNotes, "x"), ErrComplete)
			require.ErrorIs(t, h.ctrl.MountCapture(context.Background()), ErrComplete)
		})
	}
}

func TestControllerCaptureFailureAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.toPayment(t)
	h.notes.Drain()
	require.NoError(t, h.ctrl.MountCapture(context.Background()))

	h.widget.handle.fire(CaptureResult{Status: StatusRequiresPaymentMethod, Detail: "Your card was declined."})
	st := h.ctrl.State()
	assert.False(t, st.IsComplete)
	assert.Equal(t, "Your card was declined.", st.CaptureError)
	assert.Equal(t, 1, st.CaptureAttempts)
	assert.True(t, h.ctrl.Capture().Enabled())
	notes := h.notes.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyError, notes[0].Kind)
	assert.Empty(t, h.confirmer.ids)

	h.widget.handle.fire(CaptureResult{Status: StatusSucceeded})
	st = h.ctrl.State()
	assert.True(t, st.IsComplete)
	assert.Empty(t, st.CaptureError)
	assert.Equal(t, 2, st.CaptureAttempts)
	assert.Len(t, h.widget.tokens, 1, "widget initialized once")
}

func TestControllerMountCaptureNeedsToken(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.ctrl.MountCapture(context.Background()), ErrNoToken)
	assert.True(t, h.ctrl.Capture().Loading())
	assert.Empty(t, h.widget.tokens)
}

func TestControllerJumpBackKeepsAnswers(t *testing.T) {
	h := newHarness(t)
	h.advanceTo(t, StepServices)
	require.NoError(t, h.ctrl.JumpTo(StepIdentity))
	assert.Equal(t, "Ada", h.ctrl.Record().Identity.FirstName)
	require.ErrorIs(t, h.ctrl.JumpTo(StepGoals), ErrInvalidStep)
	require.NoError(t, h.ctrl.Next())
	assert.Equal(t, StepPhysiology, h.ctrl.State().CurrentStep)
}

func TestRestoreClearsInFlightSubmit(t *testing.T) {
	st := stateAt(StepConsent)
	st.IsSubmitting = true
	ctrl, err := Restore(Options{Submitter: &stubSubmitter{result: SubmitResult{Success: true, RecordID: "r2", AuthorizationToken: "t2"}}}, st, completeRecord())
	require.NoError(t, err)
	assert.False(t, ctrl.State().IsSubmitting)
	require.NoError(t, ctrl.Submit(context.Background()))
	assert.Equal(t, "r2", ctrl.State().RecordID)

	_, err = Restore(Options{}, WizardState{CurrentStep: StepPayment}, completeRecord())
	require.Error(t, err)
}
