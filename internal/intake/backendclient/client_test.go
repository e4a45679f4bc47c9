package backendclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

func TestSubmitIntakeSendsSnapshot(t *testing.T) {
	var gotKey, gotPath string
	var gotSnap intake.IntakeSnapshot
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotSnap); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(intake.SubmitResult{Success: true, RecordID: "r1", AuthorizationToken: "tok"})
	}))
	defer ts.Close()

	c := New(ts.URL+"/api/", nil)
	res, err := c.SubmitIntake(context.Background(), intake.IntakeSnapshot{TotalCents: 2000, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("SubmitIntake: %v", err)
	}
	if res.RecordID != "r1" || res.AuthorizationToken != "tok" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/api/intake" || gotKey != "k1" || gotSnap.TotalCents != 2000 {
		t.Fatalf("unexpected request path=%s key=%s snap=%+v", gotPath, gotKey, gotSnap)
	}
}

func TestSubmitIntakeErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusBadGateway, `{"success":false,"error":"payment provider unavailable"}`, "status 502"},
		{"rejected", http.StatusOK, `{"success":false,"error":"nope"}`, "nope"},
		{"garbage", http.StatusOK, `<html>`, "unmarshal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()
			_, err := New(ts.URL, nil).SubmitIntake(context.Background(), intake.IntakeSnapshot{})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSubmitIntakeTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()
	if _, err := New(url, nil).SubmitIntake(context.Background(), intake.IntakeSnapshot{}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestConfirmCapture(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"Order not found."}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	c := New(ts.URL, nil)
	res, err := c.ConfirmCapture(context.Background(), "r1")
	if err != nil || !res.Success {
		t.Fatalf("ConfirmCapture: %+v %v", res, err)
	}
	if gotPath != "/intake/r1/confirm" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if _, err := c.ConfirmCapture(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown record")
	}
}
