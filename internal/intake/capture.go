package intake

import (
	"context"
	"fmt"
	"sync"
)

// CaptureStatus is the terminal status reported by the payment widget.
type CaptureStatus string

const (
	StatusSucceeded             CaptureStatus = "succeeded"
	StatusProcessing            CaptureStatus = "processing"
	StatusRequiresPaymentMethod CaptureStatus = "requires_payment_method"
	StatusRequiresAction        CaptureStatus = "requires_action"
	StatusCanceled              CaptureStatus = "canceled"
	StatusFailed                CaptureStatus = "failed"
)

// CaptureResult is delivered by the widget when a capture attempt ends.
type CaptureResult struct {
	Status CaptureStatus
	Detail string
	Err    error
}

// CaptureHandle is a mounted widget instance.
type CaptureHandle interface {
	OnComplete(fn func(ctx context.Context, res CaptureResult))
}

// CaptureWidget mounts the card entry element for an authorization token.
type CaptureWidget interface {
	Initialize(ctx context.Context, token string) (CaptureHandle, error)
}

// CaptureAdapter owns the lifecycle of one widget for one authorization
// token. The widget is initialized at most once; failed attempts leave it
// mounted and re-enable the capture control.
type CaptureAdapter struct {
	mu          sync.Mutex
	widget      CaptureWidget
	handle      CaptureHandle
	token       string
	maxAttempts int
	attempts    int
	succeeded   bool
	lastError   string

	onSuccess func(ctx context.Context)
	onFailure func(ctx context.Context, message string)
}

// NewCaptureAdapter builds an adapter. maxAttempts <= 0 means unlimited.
func NewCaptureAdapter(widget CaptureWidget, maxAttempts int, onSuccess func(ctx context.Context), onFailure func(ctx context.Context, message string)) *CaptureAdapter {
	if onSuccess == nil {
		onSuccess = func(context.Context) {}
	}
	if onFailure == nil {
		onFailure = func(context.Context, string) {}
	}
	return &CaptureAdapter{
		widget:      widget,
		maxAttempts: maxAttempts,
		onSuccess:   onSuccess,
		onFailure:   onFailure,
	}
}

// Mount initializes the widget for token on first call. Without a token the
// adapter stays in its loading state and ErrNoToken is returned.
func (a *CaptureAdapter) Mount(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	a.mu.Lock()
	if a.handle != nil {
		mounted := a.token
		a.mu.Unlock()
		if mounted != token {
			return fmt.Errorf("intake: capture widget already mounted for another token")
		}
		return nil
	}
	if a.widget == nil {
		a.mu.Unlock()
		return fmt.Errorf("intake: capture widget not configured")
	}
	handle, err := a.widget.Initialize(ctx, token)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("intake: initialize capture widget: %w", err)
	}
	a.handle = handle
	a.token = token
	a.mu.Unlock()

	// Registered outside the lock: widgets may report synchronously.
	handle.OnComplete(a.complete)
	return nil
}

// Loading reports whether the widget has not been mounted yet.
func (a *CaptureAdapter) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle == nil
}

// Enabled reports whether the capture control accepts another attempt.
func (a *CaptureAdapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabledLocked()
}

func (a *CaptureAdapter) enabledLocked() bool {
	if a.handle == nil || a.succeeded {
		return false
	}
	return a.maxAttempts <= 0 || a.attempts < a.maxAttempts
}

// LastError returns the inline error of the latest failed attempt.
func (a *CaptureAdapter) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// Attempts is the number of completion signals accepted so far.
func (a *CaptureAdapter) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func (a *CaptureAdapter) complete(ctx context.Context, res CaptureResult) {
	a.mu.Lock()
	if !a.enabledLocked() {
		a.mu.Unlock()
		return
	}
	a.attempts++
	if res.Err == nil && res.Status == StatusSucceeded {
		a.succeeded = true
		a.lastError = ""
		a.mu.Unlock()
		a.onSuccess(ctx)
		return
	}
	msg := captureMessage(res)
	if a.maxAttempts > 0 && a.attempts >= a.maxAttempts {
		msg = "Too many payment attempts. Please contact support to finish your order."
	}
	a.lastError = msg
	a.mu.Unlock()
	a.onFailure(ctx, msg)
}

func captureMessage(res CaptureResult) string {
	if res.Err != nil {
		return CaptureRetryMessage
	}
	switch res.Status {
	case StatusProcessing:
		return "Your payment is still processing. Please wait a moment and try again."
	case StatusRequiresAction:
		return "Your bank needs additional verification. Please try again."
	case StatusCanceled:
		return "Payment was canceled. Please try again."
	}
	if res.Detail != "" {
		return res.Detail
	}
	return CaptureRetryMessage
}
