package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onlineshop/orderflow/pkg/health"
	"github.com/onlineshop/orderflow/pkg/middleware"
	"github.com/onlineshop/orderflow/services/inventory/internal/service"
)

// NewRouter creates a chi router with all inventory service routes registered.
func NewRouter(
	inventoryService *service.InventoryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing("inventory"))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("inventory"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Inventory API endpoints
	inventoryHandler := NewInventoryHandler(inventoryService, logger)

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Reservation protocol used by the saga orchestrator
		r.Post("/reserve", inventoryHandler.Reserve)
		r.Post("/release", inventoryHandler.Release)
		r.Post("/confirm", inventoryHandler.Confirm)

		// Observability
		r.Get("/reservations/{orderId}", inventoryHandler.GetReservations)

		// Stock administration
		r.Put("/stock", inventoryHandler.SeedStock)
		r.Get("/stock", inventoryHandler.ListStock)
		r.Get("/stock/{productId}", inventoryHandler.GetStock)
	})

	return r
}
