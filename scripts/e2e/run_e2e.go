// Package main drives the intake wizard end to end against a running API.
//
// Scenarios:
//   - happy-path: fill every step, submit, report a captured payment, follow
//     the receipt redirect and check the order is paid
//   - validation: advancing with an empty step is refused with field errors
//   - required-item: deselecting the required service is refused
//
// Usage:
//
//	API_BASE_URL=... ADMIN_JWT_SECRET=... go run scripts/e2e/run_e2e.go [scenario-name]
//
// ADMIN_JWT_SECRET is optional; without it the admin order check is skipped.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	httpmiddleware "github.com/wolfman30/mealprep-intake/internal/http/middleware"
)

const (
	maxWait      = 15 * time.Second
	pollInterval = 250 * time.Millisecond
)

var (
	apiBase   string
	jwtSecret string
	client    = &http.Client{Timeout: 10 * time.Second}
)

type redirect struct {
	Path  string              `json:"path"`
	Query map[string][]string `json:"query"`
}

type view struct {
	SessionID string         `json:"session_id"`
	Error     string         `json:"error"`
	Total     string         `json:"total"`
	State     map[string]any `json:"state"`
	Redirect  *redirect      `json:"redirect"`
}

func (v view) step() int {
	n, _ := v.State["current_step"].(float64)
	return int(n)
}

type scenario struct {
	name string
	run  func() error
}

var answers = []map[string]any{
	{"first_name": "Ada", "last_name": "Lovelace", "email": "ada+e2e@example.com", "phone": "555-0100", "age": 36, "gender": "female"},
	{"current_weight": 150, "goal_weight": 140, "height": "5'6\"", "activity_level": "moderate"},
	{"primary_goals": []string{"more-energy"}, "meal_prep_experience": "some", "cooking_skill": "intermediate", "budget_range": "100-150"},
	{"preferred_time": "morning", "time_zone": "America/New_York", "communication_preference": "email"},
	{"agree_to_terms": true},
}

func main() {
	apiBase = strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/")
	jwtSecret = os.Getenv("ADMIN_JWT_SECRET")

	scenarios := []scenario{
		{"happy-path", happyPath},
		{"validation", validationBlocks},
		{"required-item", requiredItem},
	}
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	failed := 0
	for _, sc := range scenarios {
		if filter != "" && sc.name != filter {
			continue
		}
		start := time.Now()
		if err := sc.run(); err != nil {
			failed++
			fmt.Printf("FAIL  %-14s %v\n", sc.name, err)
			continue
		}
		fmt.Printf("PASS  %-14s %s\n", sc.name, time.Since(start).Round(time.Millisecond))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func happyPath() error {
	v, err := call(http.MethodPost, "/wizard/sessions", nil, http.StatusCreated)
	if err != nil {
		return err
	}
	id := v.SessionID
	for i, fields := range answers {
		for key, value := range fields {
			if _, err := call(http.MethodPut, "/wizard/sessions/"+id+"/fields/"+key, map[string]any{"value": value}, http.StatusOK); err != nil {
				return fmt.Errorf("step %d %s: %w", i+1, key, err)
			}
		}
		if i < len(answers)-1 {
			if _, err := call(http.MethodPost, "/wizard/sessions/"+id+"/next", nil, http.StatusOK); err != nil {
				return fmt.Errorf("advance from %d: %w", i+1, err)
			}
		}
	}

	v, err = call(http.MethodPost, "/wizard/sessions/"+id+"/submit", nil, http.StatusOK)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if v.step() != 6 {
		return fmt.Errorf("expected payment step after submit, got %d", v.step())
	}
	if _, err := call(http.MethodPost, "/wizard/sessions/"+id+"/capture", map[string]any{"status": "succeeded"}, http.StatusOK); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	deadline := time.Now().Add(maxWait)
	for v.Redirect == nil {
		if time.Now().After(deadline) {
			return fmt.Errorf("no redirect within %s", maxWait)
		}
		time.Sleep(pollInterval)
		if v, err = call(http.MethodGet, "/wizard/sessions/"+id+"/", nil, http.StatusOK); err != nil {
			return err
		}
	}
	recordID := ""
	if ids := v.Redirect.Query["record_id"]; len(ids) > 0 {
		recordID = ids[0]
	}
	if recordID == "" {
		return fmt.Errorf("redirect %q has no record id", v.Redirect.Path)
	}
	return checkOrderPaid(recordID)
}

func checkOrderPaid(recordID string) error {
	var order struct {
		Status string `json:"status"`
	}
	if err := getJSON("/api/orders/"+recordID, "", &order); err != nil {
		return err
	}
	if order.Status != "paid" {
		return fmt.Errorf("order %s status %q, want paid", recordID, order.Status)
	}
	if jwtSecret == "" {
		return nil
	}
	token, err := httpmiddleware.IssueAdminToken(jwtSecret, "e2e", "operator", 5*time.Minute)
	if err != nil {
		return err
	}
	var list struct {
		Orders []struct {
			ID string `json:"id"`
		} `json:"orders"`
	}
	if err := getJSON("/admin/orders?status=paid", token, &list); err != nil {
		return fmt.Errorf("admin list: %w", err)
	}
	for _, o := range list.Orders {
		if o.ID == recordID {
			return nil
		}
	}
	return fmt.Errorf("order %s missing from admin list", recordID)
}

func validationBlocks() error {
	v, err := call(http.MethodPost, "/wizard/sessions", nil, http.StatusCreated)
	if err != nil {
		return err
	}
	v, err = call(http.MethodPost, "/wizard/sessions/"+v.SessionID+"/next", nil, http.StatusUnprocessableEntity)
	if err != nil {
		return err
	}
	if v.step() != 1 {
		return fmt.Errorf("expected to stay on step 1, got %d", v.step())
	}
	return nil
}

func requiredItem() error {
	v, err := call(http.MethodPost, "/wizard/sessions", nil, http.StatusCreated)
	if err != nil {
		return err
	}
	_, err = call(http.MethodPut, "/wizard/sessions/"+v.SessionID+"/fields/selected_services",
		map[string]any{"value": []string{}}, http.StatusConflict)
	return err
}

func call(method, path string, body any, wantStatus int) (view, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return view{}, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return view{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return view{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		return view{}, fmt.Errorf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, wantStatus, strings.TrimSpace(string(raw)))
	}
	var v view
	if err := json.Unmarshal(raw, &v); err != nil {
		return view{}, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return v, nil
}

func getJSON(path, token string, out any) error {
	req, err := http.NewRequest(http.MethodGet, apiBase+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
