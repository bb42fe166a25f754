package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/aegislabs/promptgate/internal/auth"
)

type principalKey struct{}

// PrincipalFromContext returns the authenticated principal's display id, or
// "" if none was attached (should not happen for a handler behind
// RequireAuth).
func PrincipalFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(principalKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireAuth wraps next with bearer/X-API-Key authentication. Health
// endpoints are expected to be registered outside this wrapper. On success
// the principal id is both attached to the request context (for handlers
// that call PrincipalFromContext) and, if LoggingMiddleware installed one,
// copied into the request's principalRecorder so the access log line for
// this request carries who made the call.
func RequireAuth(authenticator *auth.Authenticator, environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential, provided := extractCredential(r)

			principal, ok := authenticator.Verify(credential)
			if !ok {
				writeUnauthorized(w, environment, provided)
				return
			}

			if rec, ok := r.Context().Value(principalRecorderKey{}).(*principalRecorder); ok {
				rec.id = principal.ID
				rec.permissive = principal.Permissive
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractCredential(r *http.Request) (credential string, provided bool) {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v, true
	}
	if v := r.Header.Get("Authorization"); v != "" {
		if strings.HasPrefix(v, "Bearer ") {
			return strings.TrimPrefix(v, "Bearer "), true
		}
		return "", true
	}
	return "", false
}

func writeUnauthorized(w http.ResponseWriter, environment string, provided bool) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Detail: errorDetail{
			Message: "authentication required",
			Context: map[string]interface{}{
				"auth_method":          "bearer_or_api_key",
				"environment":          environment,
				"credentials_provided": provided,
			},
		},
	})
}
