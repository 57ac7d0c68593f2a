package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/partition"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/search"
	"github.com/DigitalHistory-Lund/ToK-Reader/application/traversal"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
	"github.com/DigitalHistory-Lund/ToK-Reader/interfaces/http/rest/handlers"
	"github.com/DigitalHistory-Lund/ToK-Reader/interfaces/http/rest/middleware"
)

// Router creates and configures the HTTP router
type Router struct {
	config      *config.Config
	coordinator *partition.Coordinator
	traversal   *traversal.Service
	search      *search.Service
	logger      *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	coordinator *partition.Coordinator,
	traversalService *traversal.Service,
	searchService *search.Service,
	logger *zap.Logger,
) *Router {
	return &Router{
		config:      cfg,
		coordinator: coordinator,
		traversal:   traversalService,
		search:      searchService,
		logger:      logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.config.RateLimitBurst > 0 {
		limiter := middleware.NewRateLimiter(rt.config.RateLimitBurst, time.Second)
		router.Use(limiter.Handler)
	}

	if rt.config.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	if rt.config.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		// Partition cache endpoints
		r.Route("/partitions", func(r chi.Router) {
			partitionHandler := handlers.NewPartitionHandler(rt.coordinator, rt.logger)
			r.Get("/", partitionHandler.Stats)
			r.Get("/stats", partitionHandler.Stats)
			r.Delete("/", partitionHandler.EvictAll)
			r.Post("/{year}/load", partitionHandler.Load)
			r.Get("/{year}/status", partitionHandler.Status)
			r.Delete("/{year}", partitionHandler.Evict)
		})

		// Speech record and traversal endpoints
		r.Route("/speeches/{year}", func(r chi.Router) {
			speechHandler := handlers.NewSpeechHandler(rt.traversal, rt.logger)
			r.Get("/boundary", speechHandler.Boundary)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", speechHandler.Get)
				r.Get("/context", speechHandler.Context)
				r.Get("/chain", speechHandler.Chain)
				r.Get("/exchange-start", speechHandler.ExchangeStart)
				r.Get("/adjacent-exchange", speechHandler.AdjacentExchange)
				r.Get("/adjacent-tagged", speechHandler.AdjacentTagged)
			})
		})

		// Search endpoint
		r.Post("/search", handlers.NewSearchHandler(rt.search, rt.logger).Search)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck always reports ready: partitions load lazily and the
// durable tier degrades to network-only on failure, so process
// liveness is the only gate.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
