package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/innovatehubph/inno-ai-gateway/internal/auth"
	"github.com/innovatehubph/inno-ai-gateway/internal/metrics"
)

// NewRouter assembles the public API surface. Authenticated routes sit
// under /v1; catalogs, health, metrics and the Stripe webhook stay open.
func NewRouter(h *Handler, authMiddleware auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/healthz", h.HandleHealthz)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/webhooks/stripe", h.HandleStripeWebhook)

	r.Get("/v1/images/models", h.HandleImageModels)
	r.Get("/v1/3d/models", h.HandleThreeDModels)
	r.Get("/v1/video/models", h.HandleVideoModels)
	r.Get("/v1/plans", h.HandlePlans)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return authMiddleware(next) })

		r.Post("/v1/chat/completions", h.HandleChatCompletions)
		r.Post("/v1/images/generations", h.HandleImageGenerations)
		r.Post("/v1/3d/generations", h.HandleThreeDGenerations)
		r.Post("/v1/video/generations", h.HandleVideoGenerations)
		r.Post("/v1/embeddings", h.HandleEmbeddings)
		r.Post("/v1/audio/transcriptions", h.HandleAudioTranscriptions)
		r.Get("/v1/usage", h.HandleUsage)

		r.Post("/v1/billing/subscriptions", h.HandleCreateSubscription)
		r.Get("/v1/billing/subscription", h.HandleGetSubscription)
		r.Delete("/v1/billing/subscription", h.HandleCancelSubscription)
		r.Get("/v1/billing/invoices", h.HandleBillingHistory)
	})

	if h.dataDir != "" {
		fileServer := http.StripPrefix("/data/", http.FileServer(http.Dir(h.dataDir)))
		r.Get("/data/*", func(w http.ResponseWriter, req *http.Request) {
			fileServer.ServeHTTP(w, req)
		})
	}

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if ctx := chi.RouteContext(r.Context()); ctx != nil {
			if pattern := ctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.ObserveRequest(route, strconv.Itoa(rec.status), time.Since(start))
		if rec.status == http.StatusTooManyRequests {
			metrics.IncRateLimited()
		}
	})
}
