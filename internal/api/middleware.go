package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trading-journal/internal/apperr"
	"trading-journal/internal/auth"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
)

type contextKey string

const (
	userKey   contextKey = "user"
	claimsKey contextKey = "claims"
)

// APIKeyHeader carries the webhook key.
const APIKeyHeader = "x-api-key"

func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// cors allows the dashboard frontend to call the API from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "x-api-key":
		return true
	}
	return false
}

// logRequests writes one line per request. Credentials never reach the log.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		headers := make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			if isSensitiveHeader(k) {
				headers[k] = "[REDACTED]"
			} else {
				headers[k] = strings.Join(v, ", ")
			}
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.Any("headers", headers),
		}
		switch {
		case rec.status >= 500:
			h.log.Error("HTTP request", fields...)
		case rec.status >= 400:
			h.log.Warn("HTTP request", fields...)
		default:
			h.log.Debug("HTTP request", fields...)
		}
	})
}

// withTimeout bounds the request context. Store calls fail once it expires,
// rolling back any open transaction.
func (h *Handler) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAPIKey resolves the webhook key before the body is read.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.manager.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// keyLimiter holds one token bucket per webhook user.
type keyLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newKeyLimiter(perSecond float64, burst int) *keyLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &keyLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (k *keyLimiter) allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user != nil && !h.limiter.allow(user.ID) {
			w.Header().Set("Retry-After", "1")
			h.respondJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests", Kind: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession validates the bearer token of dashboard requests.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.respondError(w, r, apperr.Unauthorized("Missing bearer token"))
			return
		}

		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			h.respondError(w, r, apperr.Unauthorized("Invalid token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// requireAdmin admits ADMIN accounts only. The role is read from the store so
// a demotion takes effect before the token expires.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.sessionUser(r)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		if !user.IsAdmin() {
			h.respondError(w, r, apperr.Forbidden("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionUser loads the account behind the request's session token.
func (h *Handler) sessionUser(r *http.Request) (*models.User, error) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return nil, apperr.Unauthorized("Missing bearer token")
	}
	user, err := h.store.UserByID(r.Context(), claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("Account no longer exists")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	return user, nil
}
