package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func operatorToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	return signToken(t, secret, jwt.MapClaims{
		"sub":  "ops-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
}

// identityEcho answers 200 with the caller's role, or 418 when the
// middleware attached no identity.
func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(string(id.Role)))
	})
}

func serve(handler http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareEnforcesRoles(t *testing.T) {
	handler := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil), nil).Wrap(identityEcho())

	cases := []struct {
		name   string
		method string
		path   string
		role   string
		status int
	}{
		{"viewer lists expenses", http.MethodGet, "/api/v1/expenses", "viewer", http.StatusOK},
		{"viewer cannot trigger", http.MethodPost, "/api/v1/monitor/trigger", "viewer", http.StatusForbidden},
		{"operator triggers", http.MethodPost, "/api/v1/monitor/trigger", "operator", http.StatusOK},
		{"operator cannot read audit", http.MethodGet, "/api/v1/audit", "operator", http.StatusForbidden},
		{"admin reads audit", http.MethodGet, "/api/v1/audit", "Admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := serve(handler, tc.method, tc.path, operatorToken(t, testSecret, tc.role))
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	handler := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil), nil).Wrap(identityEcho())
	now := time.Now()

	cases := map[string]string{
		"missing":      "",
		"wrong secret": operatorToken(t, []byte("other"), "admin"),
		"no expiry":    signToken(t, testSecret, jwt.MapClaims{"sub": "ops-1", "role": "admin"}),
		"expired":      signToken(t, testSecret, jwt.MapClaims{"sub": "ops-1", "role": "admin", "exp": now.Add(-time.Hour).Unix()}),
		"no subject":   signToken(t, testSecret, jwt.MapClaims{"role": "admin", "exp": now.Add(time.Hour).Unix()}),
		"unknown role": operatorToken(t, testSecret, "root"),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			resp := serve(handler, http.MethodGet, "/api/v1/expenses", token)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
			if resp.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected bearer challenge")
			}
		})
	}
}

func TestMiddlewareExemptAndDisabled(t *testing.T) {
	handler := NewMiddleware(testSecret, NewDefaultPolicy([]string{"/healthz"}, []string{"/discord/"}), nil).
		Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	for _, path := range []string{"/healthz", "/discord/interactions"} {
		if resp := serve(handler, http.MethodPost, path, ""); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
	if NewMiddleware(nil, Policy{}, nil) != nil {
		t.Fatalf("expected nil middleware without secret")
	}
}

func TestVerifierToleratesClockSkew(t *testing.T) {
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "ops-1",
		"role": "viewer",
		"exp":  time.Now().Add(-5 * time.Second).Unix(),
	})
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("expected token within skew to pass: %v", err)
	}
	if id != (Identity{Subject: "ops-1", Role: RoleViewer}) {
		t.Fatalf("unexpected identity %+v", id)
	}
	if _, err := v.Verify("not-a-jwt"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestParseRoleAndAllows(t *testing.T) {
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
	role, err := ParseRole(" Operator ")
	if err != nil || role != RoleOperator {
		t.Fatalf("expected operator, got %q %v", role, err)
	}
	if !RoleAdmin.Allows(RoleOperator) || RoleViewer.Allows(RoleOperator) || Role("").Allows(RoleViewer) {
		t.Fatalf("unexpected role ordering")
	}
}
