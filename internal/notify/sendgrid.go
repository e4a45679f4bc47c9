package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// SendGridAPI is the part of the SendGrid client the mailer calls.
type SendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends order emails through the SendGrid v3 API. Each
// message carries its Kind as a category and the order id as a custom arg,
// so bounces and opens can be traced back to an order.
type SendGridMailer struct {
	client SendGridAPI
	from   Identity
	logger *logging.Logger
}

// NewSendGridMailer returns nil when apiKey is empty.
func NewSendGridMailer(apiKey string, from Identity, logger *logging.Logger) *SendGridMailer {
	if apiKey == "" {
		return nil
	}
	return newSendGridMailer(sendgrid.NewSendClient(apiKey), from, logger)
}

func newSendGridMailer(client SendGridAPI, from Identity, logger *logging.Logger) *SendGridMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridMailer{client: client, from: from.withDefaults(), logger: logger}
}

func (s *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "kind", msg.Kind, "order_id", msg.OrderID)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body, "kind", msg.Kind, "order_id", msg.OrderID)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Info("order email sent via sendgrid", "kind", msg.Kind, "order_id", msg.OrderID, "status", resp.StatusCode)
	return nil
}

func (s *SendGridMailer) build(msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.Name, s.from.Email))
	if s.from.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail(s.from.Name, s.from.ReplyTo))
	}
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)

	// SendGrid requires text/plain to precede text/html.
	text := msg.Text
	if text == "" {
		text = msg.Subject
	}
	m.AddContent(mail.NewContent("text/plain", text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	if msg.Kind != "" {
		m.AddCategories(string(msg.Kind))
	}
	if msg.OrderID != "" {
		m.SetCustomArg("order_id", msg.OrderID)
	}
	return m
}

var _ Mailer = (*SendGridMailer)(nil)
