package middleware

import (
	"context"
	"net/http"

	"listingmod/internal/models"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxPrincipal ctxKey = "principal"
	ctxLogSlot   ctxKey = "log_slot"
)

// logSlot is installed by RequestLogger so that a principal attached further
// down the chain is visible when the access line is written.
type logSlot struct {
	principal *models.Principal
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	if slot, ok := ctx.Value(ctxLogSlot).(*logSlot); ok {
		slot.principal = &p
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

// Principal returns the authenticated caller, if any.
func Principal(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(models.Principal)
	return p, ok
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
