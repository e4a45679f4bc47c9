package payments

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// ProviderFake names orders authorized by FakeAuthorizer.
const ProviderFake = "fake"

// FakeAuthorizer is a dev/demo provider that mints tokens without a processor.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should never be
// enabled in production.
type FakeAuthorizer struct {
	seq    atomic.Int64
	logger *logging.Logger
}

func NewFakeAuthorizer(logger *logging.Logger) *FakeAuthorizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeAuthorizer{logger: logger}
}

func (f *FakeAuthorizer) Authorize(ctx context.Context, req orders.AuthorizationRequest) (*orders.Authorization, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("payments: fake authorizer requires order id")
	}
	ref := "fake_pi_" + req.OrderID
	n := f.seq.Add(1)
	f.logger.Debug("fake authorization minted", "record_id", req.OrderID, "amount_cents", req.AmountCents)
	return &orders.Authorization{
		Provider:    ProviderFake,
		ProviderRef: ref,
		Token:       fmt.Sprintf("%s_secret_%d", ref, n),
	}, nil
}

// Captured reports every fake payment as captured.
func (f *FakeAuthorizer) Captured(ctx context.Context, providerRef string) (bool, error) {
	return true, nil
}
