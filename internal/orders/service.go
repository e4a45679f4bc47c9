package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/mealprep-intake/internal/events"
	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

var ordersTracer = otel.Tracer("mealprep.orders")

// Authorizer mints a client-side capture token for an order.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
}

// CaptureVerifier asks the payment provider whether a payment was captured.
type CaptureVerifier interface {
	Captured(ctx context.Context, providerRef string) (bool, error)
}

// SubmissionLimiter caps how often one email may submit.
type SubmissionLimiter interface {
	AllowSubmission(ctx context.Context, email string) (bool, error)
}

// ServiceOptions wires the optional collaborators of Service.
type ServiceOptions struct {
	Idempotency IdempotencyStore
	Limiter     SubmissionLimiter
	Verifier    CaptureVerifier
	Archiver    *Archiver
	Logger      *logging.Logger
	Now         func() time.Time
}

// Service is the backend counterpart of the wizard: it persists intakes,
// mints authorizations and records confirmed captures.
type Service struct {
	repo       Repository
	catalog    *intake.Catalog
	authorizer Authorizer
	outbox     events.Outbox
	idem       IdempotencyStore
	limiter    SubmissionLimiter
	verifier   CaptureVerifier
	archiver   *Archiver
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(repo Repository, catalog *intake.Catalog, authorizer Authorizer, outbox events.Outbox, opts ServiceOptions) *Service {
	if repo == nil {
		panic("orders: repository required")
	}
	if authorizer == nil {
		panic("orders: authorizer required")
	}
	if catalog == nil {
		catalog = intake.DefaultCatalog()
	}
	if outbox == nil {
		outbox = events.NewMemoryOutbox()
	}
	if opts.Idempotency == nil {
		opts.Idempotency = NewMemoryIdempotencyStore(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:       repo,
		catalog:    catalog,
		authorizer: authorizer,
		outbox:     outbox,
		idem:       opts.Idempotency,
		limiter:    opts.Limiter,
		verifier:   opts.Verifier,
		archiver:   opts.Archiver,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// Catalog returns the price list used to re-derive totals.
func (s *Service) Catalog() *intake.Catalog {
	return s.catalog
}

// Submit persists the snapshot as a pending order and returns the record id
// and authorization token. A retry with the same key returns the original result.
func (s *Service) Submit(ctx context.Context, snap intake.IntakeSnapshot, key string) (intake.SubmitResult, error) {
	ctx, span := ordersTracer.Start(ctx, "orders.submit")
	defer span.End()

	key = strings.TrimSpace(key)
	if key == "" {
		key = snap.IdempotencyKey
	}
	if key != "" {
		prior, err := s.idem.Begin(ctx, key)
		if err != nil {
			span.RecordError(err)
			return intake.SubmitResult{}, err
		}
		if prior != nil {
			span.SetAttributes(attribute.Bool("orders.replayed", true))
			s.logger.Info("intake submission replayed", "record_id", prior.RecordID)
			return *prior, nil
		}
	}

	res, err := s.submit(ctx, snap, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if key != "" {
			if abandonErr := s.idem.Abandon(ctx, key); abandonErr != nil {
				s.logger.Warn("failed to release idempotency key", "error", abandonErr)
			}
		}
		return intake.SubmitResult{}, err
	}
	if key != "" {
		if err := s.idem.Complete(ctx, key, res); err != nil {
			s.logger.Warn("failed to store idempotent result", "record_id", res.RecordID, "error", err)
		}
	}
	span.SetAttributes(attribute.String("orders.record_id", res.RecordID))
	return res, nil
}

func (s *Service) submit(ctx context.Context, snap intake.IntakeSnapshot, key string) (intake.SubmitResult, error) {
	rec := snap.Record
	if errs := intake.ValidateAll(rec); !errs.Empty() {
		first := errs.Fields()[0]
		return intake.SubmitResult{}, fmt.Errorf("%w: %s", ErrInvalidSubmission, errs[first])
	}
	selected := rec.Scheduling.SelectedServices
	if !slices.Contains(selected, s.catalog.Required().ID) {
		return intake.SubmitResult{}, ErrRequiredServiceMissing
	}
	lines := s.catalog.Lines(selected)
	total := s.catalog.Total(selected)
	if snap.TotalCents != 0 && snap.TotalCents != total {
		s.logger.Warn("client total differs from catalog total", "client_total", snap.TotalCents, "total", total)
	}

	email := strings.ToLower(strings.TrimSpace(rec.Identity.Email))
	if s.limiter != nil {
		allowed, err := s.limiter.AllowSubmission(ctx, email)
		if err != nil {
			s.logger.Warn("submission velocity check failed", "error", err)
		} else if !allowed {
			return intake.SubmitResult{}, ErrVelocityExceeded
		}
	}

	now := s.now().UTC()
	order := &Order{
		ID:             uuid.NewString(),
		Status:         StatusPending,
		Email:          email,
		CustomerName:   rec.FullName(),
		TotalCents:     total,
		Lines:          lines,
		Record:         rec.Clone(),
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return intake.SubmitResult{}, fmt.Errorf("orders: create: %w", err)
	}

	auth, err := s.authorizer.Authorize(ctx, AuthorizationRequest{
		OrderID:        order.ID,
		AmountCents:    total,
		Email:          email,
		Description:    describeLines(lines),
		IdempotencyKey: key,
	})
	if err == nil && (auth == nil || auth.Token == "") {
		err = errors.New("empty authorization token")
	}
	if err != nil {
		if _, markErr := s.repo.MarkFailed(ctx, order.ID, "authorization failed"); markErr != nil {
			s.logger.Error("failed to mark order failed", "order_id", order.ID, "error", markErr)
		}
		return intake.SubmitResult{}, fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}
	if err := s.repo.SetProviderRef(ctx, order.ID, auth.Provider, auth.ProviderRef); err != nil {
		return intake.SubmitResult{}, fmt.Errorf("orders: set provider ref: %w", err)
	}

	if s.archiver.Enabled() {
		snap.Record = order.Record
		snap.LineItems = lines
		snap.TotalCents = total
		snap.IdempotencyKey = key
		if _, err := s.archiver.Archive(ctx, ArchivedSnapshot{OrderID: order.ID, Snapshot: snap, TotalCents: total, ArchivedAt: now}); err != nil {
			s.logger.Warn("failed to archive intake snapshot", "order_id", order.ID, "error", err)
		}
	}

	_, err = s.outbox.Append(ctx, events.OrderAggregate(order.ID), events.OrderSubmittedV1{
		OrderID:        order.ID,
		Email:          email,
		CustomerName:   order.CustomerName,
		TotalCents:     total,
		Lines:          eventLines(lines),
		Provider:       auth.Provider,
		ProviderRef:    auth.ProviderRef,
		IdempotencyKey: key,
		SubmittedAt:    now,
	})
	if err != nil {
		s.logger.Error("failed to append order_submitted event", "order_id", order.ID, "error", err)
	}

	s.logger.Info("intake submitted",
		"order_id", order.ID,
		"provider", auth.Provider,
		"total_cents", total,
		"services", len(lines),
	)
	return intake.SubmitResult{Success: true, RecordID: order.ID, AuthorizationToken: auth.Token}, nil
}

// Confirm records a capture reported by the client. Confirming an already
// paid order succeeds without side effects.
func (s *Service) Confirm(ctx context.Context, orderID string) (*Order, error) {
	ctx, span := ordersTracer.Start(ctx, "orders.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("orders.record_id", orderID))

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusPaid {
		return order, nil
	}
	if s.verifier != nil && order.ProviderRef != "" {
		captured, err := s.verifier.Captured(ctx, order.ProviderRef)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("orders: verify capture: %w", err)
		}
		if !captured {
			return nil, ErrNotCaptured
		}
	}
	return s.markPaid(ctx, order, "confirm")
}

// SettleByProviderRef applies a processor notification to the matching order.
func (s *Service) SettleByProviderRef(ctx context.Context, providerRef string, paid bool, reason string) (*Order, error) {
	order, err := s.repo.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, err
	}
	if paid {
		return s.markPaid(ctx, order, "webhook")
	}
	changed, err := s.repo.MarkFailed(ctx, order.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("orders: mark failed: %w", err)
	}
	if changed {
		_, err = s.outbox.Append(ctx, events.OrderAggregate(order.ID), events.OrderFailedV1{
			OrderID:       order.ID,
			Provider:      order.Provider,
			ProviderRef:   order.ProviderRef,
			FailureReason: reason,
			OccurredAt:    s.now().UTC(),
		})
		if err != nil {
			s.logger.Error("failed to append order_failed event", "order_id", order.ID, "error", err)
		}
		s.logger.Warn("order payment failed", "order_id", order.ID, "reason", reason)
	}
	return s.repo.GetByID(ctx, order.ID)
}

func (s *Service) markPaid(ctx context.Context, order *Order, source string) (*Order, error) {
	paidAt := s.now().UTC()
	changed, err := s.repo.MarkPaid(ctx, order.ID, paidAt)
	if err != nil {
		return nil, fmt.Errorf("orders: mark paid: %w", err)
	}
	if changed {
		sched := order.Record.Scheduling
		_, err = s.outbox.Append(ctx, events.OrderAggregate(order.ID), events.OrderPaidV1{
			OrderID:                 order.ID,
			Email:                   order.Email,
			CustomerName:            order.CustomerName,
			TotalCents:              order.TotalCents,
			Lines:                   eventLines(order.Lines),
			PreferredTime:           sched.PreferredTime,
			TimeZone:                sched.TimeZone,
			CommunicationPreference: sched.CommunicationPreference,
			Source:                  source,
			PaidAt:                  paidAt,
		})
		if err != nil {
			s.logger.Error("failed to append order_paid event", "order_id", order.ID, "error", err)
		}
		s.logger.Info("order paid", "order_id", order.ID, "source", source)
	}
	return s.repo.GetByID(ctx, order.ID)
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

// List returns orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	return s.repo.List(ctx, filter)
}

func eventLines(lines []intake.LineItem) []events.OrderLine {
	out := make([]events.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, events.OrderLine{ServiceID: l.ID, Name: l.Name, UnitPriceCents: l.UnitPriceCents})
	}
	return out
}

func describeLines(lines []intake.LineItem) string {
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, l.Name)
	}
	return "Meal prep: " + strings.Join(names, ", ")
}
