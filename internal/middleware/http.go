package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"listingmod/internal/auth"
	"listingmod/internal/models"
	"listingmod/internal/rate"
	"listingmod/internal/util"
)

// PrincipalResolver turns a bearer token into a caller identity.
type PrincipalResolver interface {
	Principal(raw string) (models.Principal, error)
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(rid); err != nil {
			rid = uuid.NewString()
		}
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// Authn rejects requests without a valid bearer token.
func Authn(v PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := auth.BearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				util.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", RequestID(r.Context()))
				return
			}
			p, err := v.Principal(raw)
			if err != nil {
				util.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuthn attaches a principal when a valid token is present and
// otherwise lets the request through anonymously. A malformed token is
// still rejected.
func OptionalAuthn(v PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Principal(auth.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				util.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// ModeratorOnly admits moderators and admins. It must run after Authn.
func ModeratorOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := Principal(r.Context())
		if !ok || !p.Role.CanModerate() {
			util.WriteError(w, http.StatusForbidden, "forbidden", "moderator role required", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit keys on the authenticated user when there is one and on the
// client address otherwise.
func RateLimit(l *rate.Limiter, route string, limit int, window time.Duration, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":ip:" + ClientIP(r, trustProxy)
			if p, ok := Principal(r.Context()); ok {
				key = route + ":user:" + p.UserID
			}
			if !l.Allow(key, limit, window) {
				w.Header().Set("Retry-After", "60")
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger writes one structured line per request.
func RequestLogger(log logrus.FieldLogger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			slot := &logSlot{}
			r = r.WithContext(context.WithValue(r.Context(), ctxLogSlot, slot))
			next.ServeHTTP(sr, r)
			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sr.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  RequestID(r.Context()),
				"remote_ip":   ClientIP(r, trustProxy),
			}
			if slot.principal != nil {
				fields["user_id"] = slot.principal.UserID
			}
			entry := log.WithFields(fields)
			switch {
			case sr.status >= 500:
				entry.Error("request")
			case sr.status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
		})
	}
}
