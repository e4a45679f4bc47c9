package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// IntakeSnapshot is the frozen payload sent when step 5 completes.
type IntakeSnapshot struct {
	Record         IntakeRecord `json:"record"`
	LineItems      []LineItem   `json:"line_items"`
	TotalCents     int64        `json:"total_cents"`
	IdempotencyKey string       `json:"idempotency_key"`
	SubmittedAt    time.Time    `json:"submitted_at"`
}

// SubmitResult is the backend answer to an intake submission.
type SubmitResult struct {
	Success            bool   `json:"success"`
	RecordID           string `json:"record_id,omitempty"`
	AuthorizationToken string `json:"authorization_token,omitempty"`
	Error              string `json:"error,omitempty"`
}

// ConfirmResult is the backend answer to a capture confirmation.
type ConfirmResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubmissionGateway persists the intake and mints a payment authorization.
type SubmissionGateway interface {
	SubmitIntake(ctx context.Context, snapshot IntakeSnapshot) (SubmitResult, error)
}

// ConfirmationGateway tells the backend a capture succeeded.
type ConfirmationGateway interface {
	ConfirmCapture(ctx context.Context, recordID string) (ConfirmResult, error)
}

// IdempotencyKey derives a stable key from the session and the submitted
// answers: an unchanged retry reuses the key, an edited retry does not.
func IdempotencyKey(sessionID string, rec IntakeRecord) string {
	data, err := json.Marshal(rec)
	if err != nil {
		data = fmt.Appendf(nil, "%#v", rec)
	}
	sum := sha256.Sum256(append([]byte(sessionID+":"), data...))
	return hex.EncodeToString(sum[:16])
}
