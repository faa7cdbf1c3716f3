package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/eslamgaber/storefront/internal/app/domain/user"
	"github.com/eslamgaber/storefront/pkg/logger"
)

type ctxKey int

const ctxUserKey ctxKey = iota

// withUserContext stores the authenticated user for downstream handlers.
func withUserContext(ctx context.Context, u *user.User) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxUserKey, u)
}

// userFrom returns the authenticated user, or nil on anonymous requests.
func userFrom(ctx context.Context) *user.User {
	u, _ := ctx.Value(ctxUserKey).(*user.User)
	return u
}

// authenticate resolves a Bearer token into a user on the request context.
// Requests without a token pass through anonymously; route guards decide
// whether that is acceptable.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			writeError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}

		u, err := h.auth.Authorize(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserContext(r.Context(), u)))
	})
}

// requireUser rejects anonymous requests.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects anonymous requests and non-admin users.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r.Context())
		if u == nil {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		if !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger tags each request with a trace id and logs its outcome.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := uuid.NewString()
			w.Header().Set("X-Trace-Id", traceID)

			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			log.WithField("trace_id", traceID).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", rec.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request handled")
		})
	}
}

// rateLimit applies a process-wide token bucket. A zero limit disables it.
func rateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
