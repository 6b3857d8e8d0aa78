package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/erazemk/ecoleta/internal/catalog"
	"github.com/erazemk/ecoleta/internal/metrics"
	"github.com/erazemk/ecoleta/internal/uploads"
)

// Config holds the HTTP-facing settings of the router. PublicURL, when set,
// is the origin used in every img_url; otherwise TrustProxy decides whether
// X-Forwarded-Proto/Host may replace the request's own scheme and host.
type Config struct {
	PublicURL   string
	TrustProxy  bool
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(svc *catalog.Service, storage *uploads.Storage, m *metrics.Metrics, cfg Config) http.Handler {
	mux := http.NewServeMux()

	origins := uploads.OriginPolicy{PublicURL: cfg.PublicURL, TrustForwarded: cfg.TrustProxy}
	itemsHandler := &ItemsHandler{Service: svc, Origins: origins}
	pointsHandler := &PointsHandler{Service: svc, Storage: storage, Origins: origins}

	mux.HandleFunc("GET /items", itemsHandler.List)

	mux.HandleFunc("GET /points", pointsHandler.List)
	mux.HandleFunc("POST /points", pointsHandler.Create)
	mux.HandleFunc("GET /points/{id}", pointsHandler.Get)

	mux.Handle("GET "+uploads.PathPrefix, storage.Handler())

	mux.HandleFunc("GET /health", healthHandler(svc))
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var h http.Handler = mux
	if m != nil {
		h = MetricsMiddleware(m)(h)
	}
	h = LoggingMiddleware(h)
	h = RequestID(h)

	allowed := cfg.CORSOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	h = cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	})(h)

	return h
}

// healthHandler reports whether the store is reachable.
func healthHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
