package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"netpulseserver/internal/domain"
)

type authCtxKey int

const authUserIDKey authCtxKey = iota

// requireAuth admits requests carrying a valid bearer token and stashes
// the token's user id in the request context. No store lookup happens
// here; handlers that need the full user load it themselves.
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		userID, ok := a.tokens.Verify(strings.TrimSpace(token))
		if !ok {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), authUserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func CurrentUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(authUserIDKey).(string)
	return id, ok
}

// requireOperator guards the reconciliation endpoints with the static
// operator token from config. An empty configured token disables the
// endpoints entirely.
func (a *api) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.operatorToken == "" {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		got := r.Header.Get("X-Operator-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.operatorToken)) != 1 {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
