package wizard

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// Config wires a Manager.
type Config struct {
	Store              SessionStore
	Catalog            *intake.Catalog
	Submitter          intake.SubmissionGateway
	Confirmer          intake.ConfirmationGateway
	Verifier           StatusVerifier
	Observer           intake.Observer
	Logger             *logging.Logger
	ReceiptPath        string
	RedirectDelay      time.Duration
	MaxCaptureAttempts int
	// IdleTimeout evicts live controllers that saw no traffic; the persisted
	// session survives and is rehydrated on the next request.
	IdleTimeout time.Duration
	AfterFunc   func(d time.Duration, fn func())
	Now         func() time.Time
}

// View is the response shape for every session operation.
type View struct {
	SessionID      string                `json:"session_id"`
	State          intake.WizardState    `json:"state"`
	Record         intake.IntakeRecord   `json:"record"`
	Lines          []intake.LineItem     `json:"line_items"`
	TotalCents     int64                 `json:"total_cents"`
	Total          string                `json:"total"`
	Notifications  []intake.Notification `json:"notifications"`
	CaptureLoading bool                  `json:"capture_loading"`
	CaptureEnabled bool                  `json:"capture_enabled"`
	Redirect       *Redirect             `json:"redirect,omitempty"`
}

type liveSession struct {
	ctrl      *intake.Controller
	queue     *intake.NotificationQueue
	widget    *RelayWidget
	createdAt time.Time

	mu       sync.Mutex // orders persistence
	redirect *Redirect
	lastSeen time.Time
}

// Manager holds live controllers keyed by session id and persists every
// mutation to the SessionStore.
type Manager struct {
	cfg    Config
	logger *logging.Logger

	mu   sync.Mutex
	live map[string]*liveSession
}

func NewManager(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = NewMemorySessionStore()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = intake.DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, logger: cfg.Logger, live: make(map[string]*liveSession)}
}

// Catalog returns the catalog sessions are priced against.
func (m *Manager) Catalog() *intake.Catalog {
	return m.cfg.Catalog
}

// Create mounts a new wizard and persists it.
func (m *Manager) Create(ctx context.Context) (View, error) {
	id := uuid.NewString()
	ls := m.newLive(m.cfg.Now().UTC())
	ls.ctrl = intake.NewController(m.controllerOptions(id, ls))

	m.mu.Lock()
	m.live[id] = ls
	m.mu.Unlock()

	if err := m.persist(ctx, id, ls); err != nil {
		return View{}, err
	}
	m.logger.Info("wizard session created", "session_id", id)
	return m.view(ls), nil
}

// Get returns the current view of a session.
func (m *Manager) Get(ctx context.Context, id string) (View, error) {
	ls, err := m.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return m.view(ls), nil
}

// Set stores a field value.
func (m *Manager) Set(ctx context.Context, id string, f intake.Field, value any) (View, error) {
	return m.mutate(ctx, id, func(c *intake.Controller) error { return c.Set(f, value) })
}

// Toggle flips membership of value in a list field.
func (m *Manager) Toggle(ctx context.Context, id string, f intake.Field, value string) (View, error) {
	return m.mutate(ctx, id, func(c *intake.Controller) error { return c.Toggle(f, value) })
}

// Next validates the current step and advances.
func (m *Manager) Next(ctx context.Context, id string) (View, error) {
	return m.mutate(ctx, id, func(c *intake.Controller) error { return c.Next() })
}

// Previous moves back one step.
func (m *Manager) Previous(ctx context.Context, id string) (View, error) {
	return m.mutate(ctx, id, func(c *intake.Controller) error { return c.Previous() })
}

// JumpTo moves to an earlier step.
func (m *Manager) JumpTo(ctx context.Context, id string, step int) (View, error) {
	return m.mutate(ctx, id, func(c *intake.Controller) error { return c.JumpTo(step) })
}

// Submit sends the intake to the backend and mounts the capture relay on
// success. A client that disconnects mid-submit does not abort the call or
// the save that follows it.
func (m *Manager) Submit(ctx context.Context, id string) (View, error) {
	ctx = context.WithoutCancel(ctx)
	return m.mutate(ctx, id, func(c *intake.Controller) error {
		if err := c.Submit(ctx); err != nil {
			return err
		}
		return c.MountCapture(ctx)
	})
}

// Capture relays a completion reported by the browser widget.
func (m *Manager) Capture(ctx context.Context, id string, report CaptureReport) (View, error) {
	ctx = context.WithoutCancel(ctx)
	ls, err := m.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return m.mutate(ctx, id, func(c *intake.Controller) error {
		if err := c.MountCapture(ctx); err != nil {
			return err
		}
		if !c.Capture().Enabled() {
			return intake.ErrCaptureLimit
		}
		return ls.widget.Report(ctx, report)
	})
}

// Sweep evicts controllers idle for longer than the configured timeout.
func (m *Manager) Sweep() int {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTimeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, ls := range m.live {
		ls.mu.Lock()
		idle := ls.lastSeen.Before(cutoff)
		ls.mu.Unlock()
		if idle {
			delete(m.live, id)
			evicted++
		}
	}
	return evicted
}

// Start sweeps idle controllers until ctx is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("evicted idle wizard sessions", "count", n)
			}
		}
	}
}

func (m *Manager) mutate(ctx context.Context, id string, op func(*intake.Controller) error) (View, error) {
	ls, err := m.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	opErr := op(ls.ctrl)
	if err := m.persist(ctx, id, ls); err != nil {
		return m.view(ls), err
	}
	return m.view(ls), opErr
}

func (m *Manager) load(ctx context.Context, id string) (*liveSession, error) {
	m.mu.Lock()
	ls, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		ls.touch(m.cfg.Now())
		return ls, nil
	}

	sess, err := m.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	restored := m.newLive(sess.CreatedAt)
	restored.redirect = sess.Redirect
	ctrl, err := intake.Restore(m.controllerOptions(id, restored), sess.State, sess.Record)
	if err != nil {
		m.logger.Error("failed to restore wizard session", "session_id", id, "error", err)
		return nil, err
	}
	restored.ctrl = ctrl
	if sess.State.CurrentStep == intake.StepPayment && !sess.State.IsComplete {
		if err := ctrl.MountCapture(ctx); err != nil {
			m.logger.Warn("failed to remount capture relay", "session_id", id, "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.live[id]; ok {
		return existing, nil
	}
	m.live[id] = restored
	m.logger.Debug("wizard session rehydrated", "session_id", id, "step", sess.State.CurrentStep)
	return restored, nil
}

func (m *Manager) newLive(createdAt time.Time) *liveSession {
	return &liveSession{
		queue:     &intake.NotificationQueue{},
		widget:    NewRelayWidget(m.cfg.Verifier),
		createdAt: createdAt,
		lastSeen:  m.cfg.Now(),
	}
}

func (m *Manager) controllerOptions(id string, ls *liveSession) intake.Options {
	return intake.Options{
		SessionID:          id,
		Catalog:            m.cfg.Catalog,
		Submitter:          m.cfg.Submitter,
		Confirmer:          m.cfg.Confirmer,
		Widget:             ls.widget,
		Notifier:           ls.queue,
		Navigator:          intake.NavigatorFunc(func(path string, query url.Values) { m.navigated(id, ls, path, query) }),
		Observer:           m.cfg.Observer,
		Logger:             m.logger.With("session_id", id),
		ReceiptPath:        m.cfg.ReceiptPath,
		RedirectDelay:      m.cfg.RedirectDelay,
		MaxCaptureAttempts: m.cfg.MaxCaptureAttempts,
		AfterFunc:          m.cfg.AfterFunc,
		Now:                m.cfg.Now,
	}
}

func (m *Manager) navigated(id string, ls *liveSession, path string, query url.Values) {
	ls.mu.Lock()
	ls.redirect = &Redirect{Path: path, Query: query}
	ls.mu.Unlock()
	if err := m.persist(context.Background(), id, ls); err != nil {
		m.logger.Error("failed to persist receipt redirect", "session_id", id, "error", err)
	}
}

func (m *Manager) persist(ctx context.Context, id string, ls *liveSession) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	sess := &Session{
		ID:        id,
		State:     ls.ctrl.State(),
		Record:    ls.ctrl.Record(),
		Redirect:  ls.redirect,
		CreatedAt: ls.createdAt,
		UpdatedAt: m.cfg.Now().UTC(),
	}
	if err := m.cfg.Store.Save(ctx, sess); err != nil {
		m.logger.Error("failed to persist wizard session", "session_id", id, "error", err)
		return err
	}
	return nil
}

func (m *Manager) view(ls *liveSession) View {
	ctrl := ls.ctrl
	total := ctrl.Total()
	notes := ls.queue.Drain()
	if notes == nil {
		notes = []intake.Notification{}
	}
	ls.mu.Lock()
	redirect := ls.redirect
	ls.mu.Unlock()
	return View{
		SessionID:      ctrl.SessionID(),
		State:          ctrl.State(),
		Record:         ctrl.Record(),
		Lines:          ctrl.Lines(),
		TotalCents:     total,
		Total:          intake.FormatCents(total),
		Notifications:  notes,
		CaptureLoading: ctrl.Capture().Loading(),
		CaptureEnabled: ctrl.Capture().Enabled(),
		Redirect:       redirect,
	}
}

func (ls *liveSession) touch(now time.Time) {
	ls.mu.Lock()
	ls.lastSeen = now
	ls.mu.Unlock()
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
