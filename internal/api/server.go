package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewServer creates an HTTP server with all routes configured.
// metricsHandler may be nil.
func NewServer(port string, handler *Handler, metricsHandler http.Handler, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(handler, metricsHandler, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter builds the operator API routes.
func NewRouter(handler *Handler, metricsHandler http.Handler, adminAPIKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Health)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/blockchains", handler.ListBlockchains)
		r.Get("/wallets", handler.ListWallets)
		r.Get("/wallets/{blockchainType}/{address}", handler.GetWallet)

		r.Group(func(r chi.Router) {
			if adminAPIKey != "" {
				r.Use(func(next http.Handler) http.Handler {
					return requireAuth(adminAPIKey, next)
				})
			}
			r.Post("/scans/{blockchainType}", handler.RunScan)
		})
	})

	return r
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
