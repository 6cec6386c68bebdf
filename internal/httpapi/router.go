package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the admin and user routes.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", DeviceHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(h.service))
		r.Post("/inventory", h.handleAddSms)
		r.Post("/inventory/bulk", h.handleBulkAddSms)
		r.Get("/withdrawals", h.handleListWithdrawals)
		r.Post("/withdrawals/{id}/approve", h.handleApproveWithdrawal)
		r.Post("/withdrawals/{id}/reject", h.handleRejectWithdrawal)
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/signup", h.handleSignUp)
		r.Post("/login", h.handleLogin)

		r.Route("/{mobile}", func(r chi.Router) {
			r.Use(DeviceAuthMiddleware(h.service))
			r.Get("/", h.handleGetAccount)
			r.Get("/history", h.handleGetHistory)
			r.Post("/checkin", h.handleCheckIn)
			r.Post("/spin", h.handleSpin)
			r.Put("/bank", h.handleSaveBankDetails)
			r.Post("/withdrawals", h.handleRequestWithdrawal)
		})
	})

	return r
}

// NewServer wraps the router with the configured timeouts.
func NewServer(addr string, writeTimeout time.Duration, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}
}
