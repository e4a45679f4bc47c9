package wizard

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

// StatusVerifier asks the payment provider for the real outcome of a capture.
type StatusVerifier interface {
	StatusForToken(ctx context.Context, token string) (intake.CaptureStatus, error)
}

// CaptureReport is what the browser widget posts back after an attempt.
type CaptureReport struct {
	Status intake.CaptureStatus `json:"status"`
	Detail string               `json:"detail,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// RelayWidget is a CaptureWidget whose completions arrive over HTTP from the
// real widget running in the browser.
type RelayWidget struct {
	verifier StatusVerifier

	mu       sync.Mutex
	token    string
	callback func(ctx context.Context, res intake.CaptureResult)
}

func NewRelayWidget(verifier StatusVerifier) *RelayWidget {
	return &RelayWidget{verifier: verifier}
}

// Initialize implements intake.CaptureWidget.
func (w *RelayWidget) Initialize(ctx context.Context, token string) (intake.CaptureHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token != "" && w.token != token {
		return nil, fmt.Errorf("wizard: relay already bound to another token")
	}
	w.token = token
	return relayHandle{w: w}, nil
}

// Report forwards a browser-side completion to the adapter.
func (w *RelayWidget) Report(ctx context.Context, report CaptureReport) error {
	w.mu.Lock()
	token, callback := w.token, w.callback
	w.mu.Unlock()
	if callback == nil {
		return intake.ErrNoToken
	}

	res := intake.CaptureResult{Status: report.Status, Detail: report.Detail}
	if report.Error != "" {
		res.Err = fmt.Errorf("widget: %s", report.Error)
	}
	if w.verifier != nil && res.Err == nil {
		status, err := w.verifier.StatusForToken(ctx, token)
		if err != nil {
			res.Err = fmt.Errorf("wizard: verify capture: %w", err)
		} else {
			res.Status = status
		}
	}
	callback(ctx, res)
	return nil
}

type relayHandle struct {
	w *RelayWidget
}

func (h relayHandle) OnComplete(fn func(ctx context.Context, res intake.CaptureResult)) {
	h.w.mu.Lock()
	h.w.callback = fn
	h.w.mu.Unlock()
}
