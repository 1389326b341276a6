package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onlineshop/orderflow/pkg/health"
	"github.com/onlineshop/orderflow/pkg/middleware"
	"github.com/onlineshop/orderflow/services/order/internal/service"
)

// NewRouter creates a chi router with all order service routes registered.
// cache may be nil, in which case GET responses are never cached.
func NewRouter(
	orderService *service.OrderService,
	healthHandler *health.Handler,
	cache *ResponseCache,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing("order"))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("order"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Order API endpoints
	orderHandler := NewOrderHandler(orderService, logger)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		if cache != nil {
			r.Use(cache.Middleware)
		}

		r.Post("/", orderHandler.Create)
		r.Get("/", orderHandler.List)
		r.Get("/{orderNumber}", orderHandler.Get)
		r.Get("/{orderNumber}/saga", orderHandler.GetSaga)
		r.Post("/{orderNumber}/cancel", orderHandler.Cancel)
		r.Post("/{orderNumber}/retry", orderHandler.Retry)
	})

	return r
}
