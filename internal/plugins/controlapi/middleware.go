package controlapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/botmesh/botmesh/internal/plugins/tokens"
)

// Context key type for storing verified claims
type contextKey string

const claimsContextKey contextKey = "claims"

// ClaimsFromContext retrieves the verified token claims from the request
// context. Returns nil if the request was not authenticated, which on
// guarded routes can only happen when authentication is disabled.
func ClaimsFromContext(ctx context.Context) *tokens.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*tokens.Claims)
	if !ok {
		return nil
	}
	return claims
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and
// false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// requireAuth validates Bearer tokens on every request passing through it
// and stores the claims in the request context. When authentication is
// disabled in configuration it is a passthrough.
func (s *Service) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AuthDisabled {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := extractBearerToken(r)
		if !ok {
			Unauthorized(w, "Authorization header required")
			return
		}

		claims, err := s.verifier.Verify(tokenString)
		if err != nil {
			Unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin blocks tokens without the admin role. Must run after
// requireAuth; with authentication disabled it is a passthrough.
func (s *Service) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AuthDisabled {
			next.ServeHTTP(w, r)
			return
		}

		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			Unauthorized(w, "Authentication required")
			return
		}
		if !claims.IsAdmin() {
			Forbidden(w, "Admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests through the plugin's scoped logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck requests are logged at DEBUG level to reduce noise
func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		s.log.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Log healthcheck requests at DEBUG to avoid polluting logs
		if isHealthPath(r.URL.Path) {
			s.log.Debug("API request completed", logArgs...)
		} else {
			s.log.Info("API request completed", logArgs...)
		}
	})
}
