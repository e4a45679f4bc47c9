package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

type stubSubmitter struct {
	mu     sync.Mutex
	calls  []intake.IntakeSnapshot
	result intake.SubmitResult
	err    error
}

func (s *stubSubmitter) SubmitIntake(ctx context.Context, snap intake.IntakeSnapshot) (intake.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, snap)
	if err := ctx.Err(); err != nil {
		return intake.SubmitResult{}, err
	}
	return s.result, s.err
}

type stubConfirmer struct {
	mu  sync.Mutex
	ids []string
}

func (s *stubConfirmer) ConfirmCapture(ctx context.Context, recordID string) (intake.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, recordID)
	if err := ctx.Err(); err != nil {
		return intake.ConfirmResult{}, err
	}
	return intake.ConfirmResult{Success: true}, nil
}

type managerHarness struct {
	store     *MemorySessionStore
	submitter *stubSubmitter
	confirmer *stubConfirmer
	pending   []func()
	now       time.Time
	mgr       *Manager
}

func newManagerHarness(t *testing.T, mutate func(*Config)) *managerHarness {
	t.Helper()
	h := &managerHarness{
		store:     NewMemorySessionStore(),
		submitter: &stubSubmitter{result: intake.SubmitResult{Success: true, RecordID: "r1", AuthorizationToken: "pi_1_secret_x"}},
		confirmer: &stubConfirmer{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.mgr = NewManager(h.config(mutate))
	return h
}

func (h *managerHarness) config(mutate func(*Config)) Config {
	cfg := Config{
		Store:         h.store,
		Submitter:     h.submitter,
		Confirmer:     h.confirmer,
		ReceiptPath:   "/receipt",
		RedirectDelay: 2 * time.Second,
		AfterFunc:     func(d time.Duration, fn func()) { h.pending = append(h.pending, fn) },
		Now:           func() time.Time { return h.now },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func (h *managerHarness) runPending() {
	pending := h.pending
	h.pending = nil
	for _, fn := range pending {
		fn()
	}
}

var stepAnswers = map[int]map[intake.Field]any{
	intake.StepIdentity: {
		intake.FieldFirstName: "Ada",
		intake.FieldLastName:  "Lovelace",
		intake.FieldEmail:     "ada@example.com",
		intake.FieldPhone:     "555-0100",
		intake.FieldAge:       float64(36),
		intake.FieldGender:    "female",
	},
	intake.StepPhysiology: {
		intake.FieldCurrentWeight: "150",
		intake.FieldGoalWeight:    float64(140),
		intake.FieldHeight:        "5'6\"",
		intake.FieldActivityLevel: "moderate",
	},
	intake.StepGoals: {
		intake.FieldPrimaryGoals:       []any{"more-energy"},
		intake.FieldMealPrepExperience: "some",
		intake.FieldCookingSkill:       "intermediate",
		intake.FieldBudgetRange:        "100-150",
	},
	intake.StepServices: {
		intake.FieldPreferredTime:           "morning",
		intake.FieldTimeZone:                "America/New_York",
		intake.FieldCommunicationPreference: "email",
	},
	intake.StepConsent: {
		intake.FieldAgreeToTerms: true,
	},
}

func (h *managerHarness) fillThrough(t *testing.T, id string, last int) View {
	t.Helper()
	ctx := context.Background()
	var view View
	var err error
	for step := intake.StepIdentity; step <= last; step++ {
		for f, v := range stepAnswers[step] {
			_, err = h.mgr.Set(ctx, id, f, v)
			require.NoError(t, err, "set %s", f)
		}
		if step < intake.StepConsent {
			view, err = h.mgr.Next(ctx, id)
			require.NoError(t, err, "advance from %d", step)
		}
	}
	return view
}

func TestManagerHappyPath(t *testing.T) {
	h := newManagerHarness(t, nil)
	ctx := context.Background()

	view, err := h.mgr.Create(ctx)
	require.NoError(t, err)
	id := view.SessionID
	assert.NotEmpty(t, id)
	assert.Equal(t, intake.StepIdentity, view.State.CurrentStep)
	assert.Equal(t, int64(2000), view.TotalCents)
	assert.Equal(t, "$20.00", view.Total)

	view, err = h.mgr.Toggle(ctx, id, intake.FieldSelectedServices, "meal-plan")
	require.NoError(t, err)
	assert.Equal(t, int64(5500), view.TotalCents)

	h.fillThrough(t, id, intake.StepConsent)
	view, err = h.mgr.Submit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, intake.StepPayment, view.State.CurrentStep)
	assert.Equal(t, "r1", view.State.RecordID)
	assert.False(t, view.CaptureLoading)
	assert.True(t, view.CaptureEnabled)
	require.Len(t, h.submitter.calls, 1)
	assert.Equal(t, int64(5500), h.submitter.calls[0].TotalCents)
	assert.NotEmpty(t, h.submitter.calls[0].IdempotencyKey)

	_, err = h.mgr.Set(ctx, id, intake.FieldFirstName, "Grace")
	require.ErrorIs(t, err, intake.ErrFrozen)

	view, err = h.mgr.Capture(ctx, id, CaptureReport{Status: intake.StatusSucceeded})
	require.NoError(t, err)
	assert.True(t, view.State.IsComplete)
	assert.Nil(t, view.Redirect, "redirect waits for the delay")
	assert.Equal(t, []string{"r1"}, h.confirmer.ids)

	require.Len(t, h.pending, 1)
	h.runPending()

	view, err = h.mgr.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, view.Redirect)
	assert.Equal(t, "/receipt?record_id=r1", view.Redirect.URL())

	stored, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.State.IsComplete)
	require.NotNil(t, stored.Redirect)

	_, err = h.mgr.Next(ctx, id)
	require.ErrorIs(t, err, intake.ErrComplete)
}

func TestManagerValidationErrorReturnsView(t *testing.T) {
	h := newManagerHarness(t, nil)
	ctx := context.Background()
	view, err := h.mgr.Create(ctx)
	require.NoError(t, err)

	view, err = h.mgr.Next(ctx, view.SessionID)
	require.ErrorIs(t, err, intake.ErrValidation)
	assert.Equal(t, intake.StepIdentity, view.State.CurrentStep)
	assert.Equal(t, "First name is required", view.State.Errors[intake.FieldFirstName])
	require.NotEmpty(t, view.Notifications)
	assert.Equal(t, intake.NotifyError, view.Notifications[0].Kind)
}

func TestManagerSubmitFailureStaysOnConsent(t *testing.T) {
	h := newManagerHarness(t, nil)
	h.submitter.err = errors.New("connection refused")
	ctx := context.Background()
	view, _ := h.mgr.Create(ctx)
	id := view.SessionID
	h.fillThrough(t, id, intake.StepConsent)

	view, err := h.mgr.Submit(ctx, id)
	require.ErrorIs(t, err, intake.ErrSubmissionFailed)
	assert.Equal(t, intake.StepConsent, view.State.CurrentStep)
	assert.Equal(t, intake.SubmitRetryMessage, view.State.SubmitError)
	assert.False(t, view.State.IsSubmitting)

	h.submitter.err = nil
	view, err = h.mgr.Submit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, intake.StepPayment, view.State.CurrentStep)
	require.Len(t, h.submitter.calls, 2)
	assert.Equal(t, h.submitter.calls[0].IdempotencyKey, h.submitter.calls[1].IdempotencyKey)
}

func TestManagerSubmitSurvivesClientDisconnect(t *testing.T) {
	h := newManagerHarness(t, nil)
	view, err := h.mgr.Create(context.Background())
	require.NoError(t, err)
	id := view.SessionID
	h.fillThrough(t, id, intake.StepConsent)

	gone, cancel := context.WithCancel(context.Background())
	cancel()

	view, err = h.mgr.Submit(gone, id)
	require.NoError(t, err)
	assert.Equal(t, intake.StepPayment, view.State.CurrentStep)
	assert.Empty(t, view.State.SubmitError)
	require.Len(t, h.submitter.calls, 1)

	stored, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "r1", stored.State.RecordID)

	view, err = h.mgr.Capture(gone, id, CaptureReport{Status: intake.StatusSucceeded})
	require.NoError(t, err)
	assert.True(t, view.State.IsComplete)
	assert.Empty(t, view.State.ConfirmationError)
	assert.Equal(t, []string{"r1"}, h.confirmer.ids)
}

func TestManagerCaptureAttemptCap(t *testing.T) {
	h := newManagerHarness(t, func(c *Config) { c.MaxCaptureAttempts = 1 })
	ctx := context.Background()
	view, _ := h.mgr.Create(ctx)
	id := view.SessionID
	h.fillThrough(t, id, intake.StepConsent)
	_, err := h.mgr.Submit(ctx, id)
	require.NoError(t, err)

	view, err = h.mgr.Capture(ctx, id, CaptureReport{Status: intake.StatusCanceled})
	require.NoError(t, err)
	assert.False(t, view.State.IsComplete)
	assert.False(t, view.CaptureEnabled)
	assert.NotEmpty(t, view.State.CaptureError)

	_, err = h.mgr.Capture(ctx, id, CaptureReport{Status: intake.StatusSucceeded})
	require.ErrorIs(t, err, intake.ErrCaptureLimit)
	assert.Empty(t, h.confirmer.ids)
}

func TestManagerRehydratesFromStore(t *testing.T) {
	h := newManagerHarness(t, nil)
	ctx := context.Background()
	view, _ := h.mgr.Create(ctx)
	id := view.SessionID
	h.fillThrough(t, id, intake.StepConsent)
	_, err := h.mgr.Submit(ctx, id)
	require.NoError(t, err)

	// A fresh process sharing the same store picks the session up at payment.
	restarted := NewManager(h.config(nil))
	view, err = restarted.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, intake.StepPayment, view.State.CurrentStep)
	assert.Equal(t, "Ada", view.Record.Identity.FirstName)
	assert.True(t, view.CaptureEnabled)

	view, err = restarted.Capture(ctx, id, CaptureReport{Status: intake.StatusSucceeded})
	require.NoError(t, err)
	assert.True(t, view.State.IsComplete)
	assert.Len(t, h.submitter.calls, 1, "rehydration must not resubmit")

	_, err = restarted.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestManagerSweepEvictsIdleSessions(t *testing.T) {
	h := newManagerHarness(t, func(c *Config) { c.IdleTimeout = time.Minute })
	ctx := context.Background()
	view, _ := h.mgr.Create(ctx)
	_, err := h.mgr.Set(ctx, view.SessionID, intake.FieldFirstName, "Ada")
	require.NoError(t, err)

	assert.Equal(t, 0, h.mgr.Sweep())
	h.now = h.now.Add(2 * time.Minute)
	assert.Equal(t, 1, h.mgr.Sweep())

	view, err = h.mgr.Get(ctx, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.Record.Identity.FirstName)
}
