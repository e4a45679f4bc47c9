package events

import "time"

// OrderLine is one priced service inside an order event.
type OrderLine struct {
	ServiceID      string `json:"service_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderSubmittedV1 is emitted when an intake is persisted with a pending authorization.
type OrderSubmittedV1 struct {
	OrderID        string      `json:"order_id"`
	Email          string      `json:"email"`
	CustomerName   string      `json:"customer_name"`
	TotalCents     int64       `json:"total_cents"`
	Lines          []OrderLine `json:"lines"`
	Provider       string      `json:"provider"`
	ProviderRef    string      `json:"provider_ref"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	SubmittedAt    time.Time   `json:"submitted_at"`
}

func (OrderSubmittedV1) EventType() string { return "order_submitted.v1" }

// OrderPaidV1 is emitted once the capture for an order is confirmed.
type OrderPaidV1 struct {
	OrderID                 string      `json:"order_id"`
	Email                   string      `json:"email"`
	CustomerName            string      `json:"customer_name"`
	TotalCents              int64       `json:"total_cents"`
	Lines                   []OrderLine `json:"lines"`
	PreferredTime           string      `json:"preferred_time,omitempty"`
	TimeZone                string      `json:"time_zone,omitempty"`
	CommunicationPreference string      `json:"communication_preference,omitempty"`
	Source                  string      `json:"source"` // confirm, webhook
	PaidAt                  time.Time   `json:"paid_at"`
}

func (OrderPaidV1) EventType() string { return "order_paid.v1" }

// OrderFailedV1 is emitted when the processor reports a terminal failure.
type OrderFailedV1 struct {
	OrderID       string    `json:"order_id"`
	Provider      string    `json:"provider"`
	ProviderRef   string    `json:"provider_ref"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (OrderFailedV1) EventType() string { return "order_failed.v1" }
