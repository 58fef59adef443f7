package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zerotrust/internal/platform/metrics"
	"zerotrust/internal/platform/middleware"
)

// NewRouter mounts the engine endpoints behind the common middleware stack.
// Health and metrics sit outside request logging.
func NewRouter(h *Handler, logger *slog.Logger, m *metrics.Metrics, health http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Handle("/healthz", health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.Recover(logger))
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(logger, m))
		h.Register(r)
	})
	return r
}
