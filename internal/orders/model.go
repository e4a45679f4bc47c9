package orders

import (
	"time"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// Order is a persisted intake with its pricing and payment reference.
type Order struct {
	ID             string              `json:"id"`
	Status         Status              `json:"status"`
	Email          string              `json:"email"`
	CustomerName   string              `json:"customer_name"`
	TotalCents     int64               `json:"total_cents"`
	Lines          []intake.LineItem   `json:"lines"`
	Record         intake.IntakeRecord `json:"record"`
	Provider       string              `json:"provider,omitempty"`
	ProviderRef    string              `json:"provider_ref,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
}

// Receipt is the public view of an order. It carries no contact details or
// intake answers, only what a receipt page shows.
type Receipt struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	FirstName  string            `json:"first_name,omitempty"`
	Lines      []intake.LineItem `json:"lines"`
	TotalCents int64             `json:"total_cents"`
	CreatedAt  time.Time         `json:"created_at"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
}

// Receipt projects o onto its public view.
func (o *Order) Receipt() Receipt {
	lines := o.Lines
	if lines == nil {
		lines = []intake.LineItem{}
	}
	return Receipt{
		ID:         o.ID,
		Status:     o.Status,
		FirstName:  o.Record.Identity.FirstName,
		Lines:      lines,
		TotalCents: o.TotalCents,
		CreatedAt:  o.CreatedAt,
		PaidAt:     o.PaidAt,
	}
}

// ListFilter narrows order listings.
type ListFilter struct {
	Statuses []Status
	Email    string
	Limit    int
	Offset   int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f ListFilter) statusStrings() []string {
	out := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		out = append(out, string(s))
	}
	return out
}

func (f ListFilter) matches(o *Order) bool {
	if f.Email != "" && o.Email != f.Email {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

// AuthorizationRequest asks the payment provider for a capture token.
type AuthorizationRequest struct {
	OrderID        string
	AmountCents    int64
	Email          string
	Description    string
	IdempotencyKey string
}

// Authorization is the provider's answer: ProviderRef identifies the payment
// on the provider side, Token is handed to the client capture widget.
type Authorization struct {
	Provider    string
	ProviderRef string
	Token       string
}
