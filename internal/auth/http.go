// ABOUTME: HTTP middleware for JWT authentication on API and stream endpoints
// ABOUTME: Accepts Authorization bearer headers or a token query parameter

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/hearthlabs/hearth/internal/store"
)

// MemberStore defines the lookup the middleware needs to confirm the token's
// subject still exists.
type MemberStore interface {
	GetMember(ctx context.Context, id string) (*store.Member, error)
}

// extractToken pulls the credential from the Authorization header, falling
// back to the token query parameter. Browsers cannot set headers on
// WebSocket upgrades, so the stream endpoint authenticates via query param.
// Returns the token and an error message (empty if successful).
func extractToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "invalid authorization header format"
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", "empty token"
		}
		return token, ""
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing credentials"
}

// Middleware creates an HTTP middleware that validates JWT tokens, confirms
// the member still exists, and attaches the Identity to the request context.
func Middleware(members MemberStore, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractToken(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			if _, err := members.GetMember(r.Context(), id.MemberID); err != nil {
				http.Error(w, `{"error":"member not found"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdminToken creates an HTTP middleware gating operator endpoints on
// a static admin token. The token comes from config, not from member JWTs.
func RequireAdminToken(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				http.Error(w, `{"error":"admin endpoints disabled"}`, http.StatusForbidden)
				return
			}

			token, errMsg := extractToken(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}
			if token != adminToken {
				http.Error(w, `{"error":"admin token required"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
