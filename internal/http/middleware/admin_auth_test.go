package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func serveAdmin(t *testing.T, secret, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok || claims.Subject != "ops@example.com" {
			t.Errorf("expected admin claims in context, got %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWTRejects(t *testing.T) {
	valid, err := IssueAdminToken("secret", "ops@example.com", "admin", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	customer, _ := IssueAdminToken("secret", "ops@example.com", "customer", time.Minute)
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}).SignedString([]byte("secret"))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: "admin"}).SignedString([]byte("secret"))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, AdminClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("secret"))

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"disabled", "", "Bearer " + valid, http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "other", "Bearer " + valid, http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + expired, http.StatusUnauthorized},
		{"no expiry", "secret", "Bearer " + noExpiry, http.StatusUnauthorized},
		{"wrong algorithm", "secret", "Bearer " + hs512, http.StatusUnauthorized},
		{"wrong role", "secret", "Bearer " + customer, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, called := serveAdmin(t, tc.secret, tc.header)
			if called || rec.Code != tc.want {
				t.Fatalf("expected %d without calling handler, got %d (called=%v)", tc.want, rec.Code, called)
			}
		})
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	token, err := IssueAdminToken("secret", "ops@example.com", "operator", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec, called := serveAdmin(t, "secret", "Bearer "+token)
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run, got %d", rec.Code)
	}
}

func TestIssueAdminTokenRequiresSecret(t *testing.T) {
	if _, err := IssueAdminToken("", "x", "admin", time.Minute); err == nil {
		t.Fatalf("expected error without secret")
	}
}
