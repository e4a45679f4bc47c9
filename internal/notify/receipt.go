package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/mealprep-intake/internal/events"
	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

const dedupeScope = "receipt"

// ReceiptConfig controls who hears about orders.
type ReceiptConfig struct {
	// OperatorRecipients receive a copy of every paid order and every failure.
	OperatorRecipients []string
	BusinessName       string
}

// ReceiptService turns order events from the outbox into emails. It is an
// events.DeliveryHandler.
type ReceiptService struct {
	mailer    Mailer
	cfg       ReceiptConfig
	processed events.Deduper
	logger    *logging.Logger
}

// NewReceiptService creates a receipt sender. processed may be nil, in which
// case redelivered events send duplicate emails.
func NewReceiptService(mailer Mailer, cfg ReceiptConfig, processed events.Deduper, logger *logging.Logger) *ReceiptService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = defaultBusinessName
	}
	return &ReceiptService{mailer: mailer, cfg: cfg, processed: processed, logger: logger}
}

// Handle implements events.DeliveryHandler.
func (s *ReceiptService) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if s.mailer == nil {
		return nil
	}
	switch entry.Type {
	case events.OrderPaidV1{}.EventType(), events.OrderFailedV1{}.EventType():
	default:
		return nil
	}

	eventID := entry.ID.String()
	if s.processed != nil {
		done, err := s.processed.AlreadyProcessed(ctx, dedupeScope, eventID)
		if err != nil {
			s.logger.Warn("notify: dedupe lookup failed", "error", err, "event_id", eventID)
		} else if done {
			return nil
		}
	}

	var err error
	switch entry.Type {
	case events.OrderPaidV1{}.EventType():
		var evt events.OrderPaidV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			s.logger.Error("notify: malformed order_paid payload", "error", err, "event_id", eventID)
			return nil
		}
		err = s.NotifyOrderPaid(ctx, evt)
	case events.OrderFailedV1{}.EventType():
		var evt events.OrderFailedV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			s.logger.Error("notify: malformed order_failed payload", "error", err, "event_id", eventID)
			return nil
		}
		err = s.NotifyOrderFailed(ctx, evt)
	}
	if err != nil {
		return err
	}

	if s.processed != nil {
		if _, err := s.processed.MarkProcessed(ctx, dedupeScope, eventID); err != nil {
			s.logger.Warn("notify: failed to mark event processed", "error", err, "event_id", eventID)
		}
	}
	return nil
}

// NotifyOrderPaid sends the customer receipt and the operator copy.
func (s *ReceiptService) NotifyOrderPaid(ctx context.Context, evt events.OrderPaidV1) error {
	amount := intake.FormatCents(evt.TotalCents)
	name := evt.CustomerName
	if strings.TrimSpace(name) == "" {
		name = "there"
	}

	var lines, htmlLines strings.Builder
	for _, l := range evt.Lines {
		fmt.Fprintf(&lines, "  - %s: %s\n", l.Name, intake.FormatCents(l.UnitPriceCents))
		fmt.Fprintf(&htmlLines, `<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb; text-align: right;">%s</td></tr>`,
			html.EscapeString(l.Name), intake.FormatCents(l.UnitPriceCents))
	}
	schedule := ""
	if evt.PreferredTime != "" {
		schedule = fmt.Sprintf("\nPreferred time: %s", evt.PreferredTime)
		if evt.TimeZone != "" {
			schedule += fmt.Sprintf(" (%s)", evt.TimeZone)
		}
	}

	var errs []error
	if evt.Email != "" {
		body := fmt.Sprintf(`Hi %s,

Thanks for your order! Your payment of %s was received on %s.

%s
Total: %s%s
Order: %s

We'll reach out by %s to schedule your kickoff.

%s`, name, amount, evt.PaidAt.Format("January 2, 2006"), lines.String(), amount, schedule, evt.OrderID,
			contactChannel(evt.CommunicationPreference), s.cfg.BusinessName)

		htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #10b981;">Payment received</h2>
<p>Hi %s, thanks for your order!</p>
<table style="border-collapse: collapse; margin: 20px 0; width: 100%%;">%s
  <tr><td style="padding: 8px;"><strong>Total</strong></td><td style="padding: 8px; text-align: right;"><strong>%s</strong></td></tr>
</table>
<p style="color: #6b7280; font-size: 12px;">Order %s</p>
</div>`, html.EscapeString(name), htmlLines.String(), amount, html.EscapeString(evt.OrderID))

		msg := Message{
			Kind:    KindReceipt,
			OrderID: evt.OrderID,
			To:      evt.Email,
			ToName:  evt.CustomerName,
			Subject: fmt.Sprintf("Your %s receipt", s.cfg.BusinessName),
			Text:    body,
			HTML:    htmlBody,
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send receipt", "error", err, "order_id", evt.OrderID)
			errs = append(errs, err)
		} else {
			s.logger.Info("notify: receipt sent", "order_id", evt.OrderID)
		}
	}

	if len(s.cfg.OperatorRecipients) > 0 {
		subject := fmt.Sprintf("New paid order - %s", evt.CustomerName)
		body := fmt.Sprintf(`%s paid %s (%s).

%s
Email: %s%s
Contact via: %s
Order: %s`, evt.CustomerName, amount, evt.Source, lines.String(), evt.Email, schedule,
			contactChannel(evt.CommunicationPreference), evt.OrderID)
		errs = append(errs, s.sendOperators(ctx, KindOperatorPaid, subject, body, evt.OrderID)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

// NotifyOrderFailed alerts operators that a payment was declined or canceled.
func (s *ReceiptService) NotifyOrderFailed(ctx context.Context, evt events.OrderFailedV1) error {
	if len(s.cfg.OperatorRecipients) == 0 {
		return nil
	}
	reason := evt.FailureReason
	if reason == "" {
		reason = "unknown"
	}
	subject := fmt.Sprintf("Payment failed for order %s", evt.OrderID)
	body := fmt.Sprintf(`A payment failed at %s.

Order: %s
Provider: %s (%s)
Reason: %s`, evt.OccurredAt.Format("January 2, 2006 at 3:04 PM"), evt.OrderID, evt.Provider, evt.ProviderRef, reason)
	if errs := s.sendOperators(ctx, KindPaymentAlert, subject, body, evt.OrderID); len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

func (s *ReceiptService) sendOperators(ctx context.Context, kind Kind, subject, body, orderID string) []error {
	var errs []error
	for _, recipient := range s.cfg.OperatorRecipients {
		msg := Message{Kind: kind, OrderID: orderID, To: recipient, Subject: subject, Text: body}
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send operator email", "error", err, "to", recipient, "order_id", orderID)
			errs = append(errs, err)
		}
	}
	return errs
}

func contactChannel(pref string) string {
	switch strings.ToLower(pref) {
	case "phone", "call":
		return "phone"
	case "text", "sms":
		return "text message"
	default:
		return "email"
	}
}

var _ events.DeliveryHandler = (*ReceiptService)(nil)
