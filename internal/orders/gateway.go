package orders

import (
	"context"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

// LocalGateway lets a wizard running in the same process submit straight to
// the Service instead of going through the HTTP API.
type LocalGateway struct {
	service *Service
}

func NewLocalGateway(service *Service) *LocalGateway {
	return &LocalGateway{service: service}
}

// SubmitIntake implements intake.SubmissionGateway.
func (g *LocalGateway) SubmitIntake(ctx context.Context, snap intake.IntakeSnapshot) (intake.SubmitResult, error) {
	res, err := g.service.Submit(ctx, snap, snap.IdempotencyKey)
	if err != nil {
		_, msg := submitErrorStatus(err)
		return intake.SubmitResult{Error: msg}, err
	}
	return res, nil
}

// ConfirmCapture implements intake.ConfirmationGateway.
func (g *LocalGateway) ConfirmCapture(ctx context.Context, recordID string) (intake.ConfirmResult, error) {
	if _, err := g.service.Confirm(ctx, recordID); err != nil {
		return intake.ConfirmResult{Error: msgConfirmFailed}, err
	}
	return intake.ConfirmResult{Success: true}, nil
}
