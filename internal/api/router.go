package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"listingmod/internal/config"
	"listingmod/internal/logging"
	"listingmod/internal/middleware"
	"listingmod/internal/models"
	"listingmod/internal/rate"
	"listingmod/internal/service"
	"listingmod/internal/util"
	"listingmod/internal/version"
)

type Handlers struct {
	cfg      config.Config
	svc      *service.Service
	limiter  *rate.Limiter
	verifier middleware.PrincipalResolver
	log      logrus.FieldLogger
}

func NewRouter(cfg config.Config, svc *service.Service, verifier middleware.PrincipalResolver, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logging.Discard()
	}
	h := &Handlers{
		cfg:      cfg,
		svc:      svc,
		limiter:  rate.NewLimiter(),
		verifier: verifier,
		log:      log,
	}
	reportRate := cfg.ReportRatePerMin
	if reportRate <= 0 {
		reportRate = 10
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, 200, version.Current())
		})
		r.With(middleware.OptionalAuthn(h.verifier)).Get("/listings/{id}", h.GetListing)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.verifier))
			r.Post("/listings", h.CreateListing)
			r.Put("/listings/{id}", h.UpdateListing)
			r.Delete("/listings/{id}", h.DeleteListing)
			r.Post("/listings/{id}/sold", h.MarkSold)
			r.Get("/listings/{id}/history", h.ListingHistory)

			r.With(middleware.RateLimit(h.limiter, "reports", reportRate, time.Minute, h.cfg.TrustProxy)).Post("/reports", h.CreateReport)
			r.Get("/reports/my", h.MyReports)
			r.Get("/reports/{id}", h.GetReport)

			r.Group(func(r chi.Router) {
				r.Use(middleware.ModeratorOnly)
				r.Get("/reports", h.ListReports)
				r.Put("/reports/{id}/status", h.UpdateReportStatus)
				r.Post("/reports/{id}/accept", h.AcceptReport)
				r.Post("/reports/{id}/dismiss", h.DismissReport)
				r.Put("/comments/{id}/hidden", h.SetCommentHidden)
			})

			r.Route("/moderation", func(r chi.Router) {
				r.Use(middleware.ModeratorOnly)
				r.Get("/pending", h.PendingQueue)
				r.Get("/stats", h.Stats)
				r.Get("/listings/{id}", h.ModerationListing)
				r.Get("/listings/{id}/audit", h.AuditListing)
				r.Post("/listings/{id}/approve", h.Approve)
				r.Post("/listings/{id}/reject", h.Reject)
				r.Post("/batch/approve", h.BatchApprove)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		util.WriteError(w, http.StatusNotFound, "not_found", "route not found", middleware.RequestID(r.Context()))
	})
	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	ready := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"version":    version.Current(),
	}
	if err := h.svc.Ready(ctx); err != nil {
		ready["status"] = "degraded"
		ready["components"] = map[string]any{"database": map[string]any{"ok": false, "error": err.Error()}}
		util.WriteJSON(w, 503, ready)
		return
	}
	ready["status"] = "ready"
	ready["components"] = map[string]any{"database": map[string]any{"ok": true}}
	util.WriteJSON(w, 200, ready)
}

// principal returns the caller set by Authn. Handlers behind Authn can rely
// on it being present.
func principal(r *http.Request) (p models.Principal) {
	p, _ = middleware.Principal(r.Context())
	return p
}
