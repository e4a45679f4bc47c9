package notify

import (
	"context"
	"net/mail"
	"strings"
	"sync"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

const defaultBusinessName = "Meal Prep Studio"

// Kind classifies an order email. Transports forward it as a category or
// tag so deliverability can be tracked per message type.
type Kind string

const (
	KindReceipt      Kind = "receipt"
	KindOperatorPaid Kind = "operator_paid"
	KindPaymentAlert Kind = "payment_alert"
)

// Message is one rendered email about an order.
type Message struct {
	Kind    Kind
	OrderID string
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers rendered order emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Identity is the From and Reply-To used on every order email.
type Identity struct {
	Email   string
	Name    string
	ReplyTo string
}

func (id Identity) withDefaults() Identity {
	id.Email = strings.TrimSpace(id.Email)
	id.ReplyTo = strings.TrimSpace(id.ReplyTo)
	if strings.TrimSpace(id.Name) == "" {
		id.Name = defaultBusinessName
	}
	return id
}

// From renders the RFC 5322 From header.
func (id Identity) From() string {
	return (&mail.Address{Name: id.Name, Address: id.Email}).String()
}

// LogMailer records messages instead of sending them. It backs local runs
// and deployments without an email provider.
type LogMailer struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogMailer(logger *logging.Logger) *LogMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.logger.Info("order email not sent: no provider configured", "kind", msg.Kind, "order_id", msg.OrderID, "subject", msg.Subject)
	return nil
}

// Sent returns the messages recorded so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

var _ Mailer = (*LogMailer)(nil)
