// Package backendclient talks to the intake API on behalf of a wizard that
// runs apart from the backend.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/mealprep-intake/internal/intake"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

const defaultTimeout = 15 * time.Second

var tracer = otel.Tracer("mealprep.backendclient")

// Client implements intake.SubmissionGateway and intake.ConfirmationGateway
// against the HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a client for the API rooted at baseURL (for example
// "http://localhost:8080/api").
func New(baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// WithHTTPClient swaps the underlying client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// SubmitIntake posts the snapshot to /intake.
func (c *Client) SubmitIntake(ctx context.Context, snap intake.IntakeSnapshot) (intake.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "backendclient.submit_intake")
	defer span.End()
	span.SetAttributes(attribute.Int64("intake.total_cents", snap.TotalCents))

	var out intake.SubmitResult
	headers := map[string]string{}
	if snap.IdempotencyKey != "" {
		headers["Idempotency-Key"] = snap.IdempotencyKey
	}
	status, err := c.post(ctx, "/intake", snap, headers, &out)
	if err == nil && !out.Success {
		err = fmt.Errorf("backendclient: submit rejected (status %d): %s", status, out.Error)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		c.logger.Warn("intake submission failed", "status", status, "error", err)
		return out, err
	}
	span.SetAttributes(attribute.String("intake.record_id", out.RecordID))
	return out, nil
}

// ConfirmCapture posts to /intake/{recordID}/confirm.
func (c *Client) ConfirmCapture(ctx context.Context, recordID string) (intake.ConfirmResult, error) {
	ctx, span := tracer.Start(ctx, "backendclient.confirm_capture")
	defer span.End()
	span.SetAttributes(attribute.String("intake.record_id", recordID))

	var out intake.ConfirmResult
	status, err := c.post(ctx, "/intake/"+url.PathEscape(recordID)+"/confirm", nil, nil, &out)
	if err == nil && !out.Success {
		err = fmt.Errorf("backendclient: confirm rejected (status %d): %s", status, out.Error)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return out, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, headers map[string]string, out any) (int, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("backendclient: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("backendclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("backendclient: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("backendclient: read response: %w", err)
	}
	decodeErr := json.Unmarshal(respBody, out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return resp.StatusCode, fmt.Errorf("backendclient: status %d: %s", resp.StatusCode, strings.TrimSpace(msg))
	}
	if decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("backendclient: unmarshal response: %w", decodeErr)
	}
	return resp.StatusCode, nil
}
