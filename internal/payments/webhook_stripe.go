package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/mealprep-intake/internal/events"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// OrderSettler applies processor outcomes to orders.
type OrderSettler interface {
	SettleByProviderRef(ctx context.Context, providerRef string, paid bool, reason string) (*orders.Order, error)
}

// StripeWebhookHandler reconciles PaymentIntent outcomes into orders. It is
// the settlement path for captures whose client confirmation never arrived.
type StripeWebhookHandler struct {
	webhookSecret string
	orders        OrderSettler
	processed     events.Deduper
	logger        *logging.Logger
	now           func() time.Time
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks.
func NewStripeWebhookHandler(webhookSecret string, settler OrderSettler, processed events.Deduper, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if processed == nil {
		processed = events.NewMemoryProcessedStore()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		orders:        settler,
		processed:     processed,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	var paid bool
	switch evt.Type {
	case "payment_intent.succeeded":
		paid = true
	case "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if processed, err := h.processed.AlreadyProcessed(r.Context(), ProviderStripe, evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if processed {
		w.WriteHeader(http.StatusOK)
		return
	}

	intent := evt.Data.Object
	if intent.ID == "" {
		h.logger.Warn("stripe webhook missing payment intent id", "event_id", evt.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	reason := ""
	if !paid {
		reason = intent.failureReason()
	}
	order, err := h.orders.SettleByProviderRef(r.Context(), intent.ID, paid, reason)
	if errors.Is(err, orders.ErrOrderNotFound) {
		// Acknowledge to prevent retries for intents this service never created.
		h.logger.Warn("stripe webhook for unknown order", "event_id", evt.ID, "payment_intent", intent.ID, "record_id", intent.Metadata["record_id"])
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Error("failed to settle order", "error", err, "payment_intent", intent.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.processed.MarkProcessed(r.Context(), ProviderStripe, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "error", err)
	}
	h.logger.Info("stripe webhook settled order", "event_id", evt.ID, "record_id", order.ID, "status", order.Status)
	w.WriteHeader(http.StatusOK)
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeIntentObject `json:"object"`
	} `json:"data"`
}

// stripeIntentObject is the payment_intent object from the webhook.
type stripeIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	Status           string            `json:"status"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (o stripeIntentObject) failureReason() string {
	if o.LastPaymentError != nil {
		if o.LastPaymentError.Code != "" {
			return o.LastPaymentError.Code
		}
		if o.LastPaymentError.Message != "" {
			return o.LastPaymentError.Message
		}
	}
	if o.Status != "" {
		return o.Status
	}
	return "payment_failed"
}

// verifyStripeSignature verifies a Stripe webhook signature.
// Stripe signs with HMAC-SHA256 and sends the signature in the Stripe-Signature header
// as: t=<timestamp>,v1=<signature>[,v0=<test_signature>]
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true // bypass for development
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	// 5 minute tolerance
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > 300 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, string(payload))))
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
