package auth

import (
	"log"
	"net/http"
	"strings"
)

// Middleware authenticates operator API calls and enforces the role policy.
type Middleware struct {
	verifier *Verifier
	policy   Policy
	logger   *log.Logger
}

// NewMiddleware constructs the middleware. It returns nil when secret is
// empty, and a nil Middleware leaves handlers unwrapped.
func NewMiddleware(secret []byte, policy Policy, logger *log.Logger) *Middleware {
	verifier, err := NewVerifier(secret)
	if err != nil {
		return nil
	}
	return &Middleware{verifier: verifier, policy: policy, logger: logger}
}

// Wrap applies authentication and the role policy to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.verifier.Verify(bearerToken(r.Header.Get("Authorization")))
		if err != nil {
			m.logf("api auth rejected: path=%s err=%v", r.URL.Path, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="strongbot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !id.Role.Allows(required) {
			m.logf("api auth forbidden: path=%s subject=%s role=%s required=%s", r.URL.Path, id.Subject, id.Role, required)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func (m *Middleware) logf(format string, args ...any) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
