package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

var stripeTracer = otel.Tracer("mealprep.internal.payments.stripe")

// ProviderStripe names orders authorized through Stripe.
const ProviderStripe = "stripe"

// StripeIntentService creates PaymentIntents whose client secret is the
// authorization token handed to the capture widget.
type StripeIntentService struct {
	secretKey  string
	baseURL    string
	apiVersion string
	currency   string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeIntentService creates a new Stripe PaymentIntent client.
func NewStripeIntentService(secretKey string, logger *logging.Logger) *StripeIntentService {
	if logger == nil {
		logger = logging.Default()
	}
	dryRun := strings.EqualFold(os.Getenv("STRIPE_DRY_RUN"), "true") || os.Getenv("STRIPE_DRY_RUN") == "1"
	return &StripeIntentService{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		currency:   "usd",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		dryRun:     dryRun,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeIntentService) WithBaseURL(baseURL string) *StripeIntentService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun enables dry-run mode (returns fake intents without calling Stripe).
func (s *StripeIntentService) WithDryRun(enabled bool) *StripeIntentService {
	s.dryRun = enabled
	return s
}

// Authorize implements orders.Authorizer.
func (s *StripeIntentService) Authorize(ctx context.Context, req orders.AuthorizationRequest) (*orders.Authorization, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("mealprep.record_id", req.OrderID),
		attribute.Int64("mealprep.amount_cents", req.AmountCents),
	)

	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: stripe amount must be positive, got %d", req.AmountCents)
	}

	if s.dryRun {
		fakeID := "pi_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping payment intent creation",
			"record_id", req.OrderID, "amount_cents", req.AmountCents)
		return &orders.Authorization{
			Provider:    ProviderStripe,
			ProviderRef: fakeID,
			Token:       fakeID + "_secret_dryrun",
		}, nil
	}

	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = "Meal prep services"
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", req.AmountCents))
	form.Set("currency", s.currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("description", description)
	form.Set("metadata[record_id]", req.OrderID)
	if req.Email != "" {
		form.Set("receipt_email", req.Email)
	}

	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var parsed stripePaymentIntent
	if err := s.do(httpReq, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if parsed.ID == "" || parsed.ClientSecret == "" {
		return nil, errors.New("payments: stripe response missing client secret")
	}
	return &orders.Authorization{
		Provider:    ProviderStripe,
		ProviderRef: parsed.ID,
		Token:       parsed.ClientSecret,
	}, nil
}

// RetrieveStatus returns the current PaymentIntent status.
func (s *StripeIntentService) RetrieveStatus(ctx context.Context, intentID string) (string, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent", intentID))

	if intentID == "" {
		return "", errors.New("payments: payment intent id required")
	}
	if s.dryRun {
		return string(intake.StatusSucceeded), nil
	}
	req, err := s.newRequest(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return "", err
	}
	var parsed stripePaymentIntent
	if err := s.do(req, &parsed); err != nil {
		span.RecordError(err)
		return "", err
	}
	return parsed.Status, nil
}

// Captured implements orders.CaptureVerifier.
func (s *StripeIntentService) Captured(ctx context.Context, providerRef string) (bool, error) {
	status, err := s.RetrieveStatus(ctx, providerRef)
	if err != nil {
		return false, err
	}
	return status == string(intake.StatusSucceeded), nil
}

// StatusForToken resolves a client secret to the intent's capture status.
func (s *StripeIntentService) StatusForToken(ctx context.Context, token string) (intake.CaptureStatus, error) {
	intentID, ok := IntentIDFromClientSecret(token)
	if !ok {
		return "", fmt.Errorf("payments: malformed client secret")
	}
	status, err := s.RetrieveStatus(ctx, intentID)
	if err != nil {
		return "", err
	}
	return intake.CaptureStatus(status), nil
}

// IntentIDFromClientSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromClientSecret(secret string) (string, bool) {
	idx := strings.Index(secret, "_secret_")
	if idx <= 0 {
		return "", false
	}
	return secret[:idx], true
}

func (s *StripeIntentService) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", s.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func (s *StripeIntentService) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, readStripeError(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}

// stripePaymentIntent is the subset of Stripe's PaymentIntent we need.
type stripePaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Metadata     map[string]string `json:"metadata"`
}

// stripeErrorResponse represents a Stripe API error.
type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// readStripeError reads a Stripe error body, preferring the API message.
func readStripeError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "unknown error"
	}
	var parsed stripeErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	var buf bytes.Buffer
	if json.Indent(&buf, data, "", "  ") == nil {
		return buf.String()
	}
	return string(data)
}
