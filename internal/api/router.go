/**
 * @description
 * This file sets up the HTTP router for the bank-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lumenbank/bank-service/internal/auth"
)

// BankRoutes creates and returns the router for the bank service.
func BankRoutes(h *BankHandlers, authn *auth.Authenticator) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)

		// Group routes that require authentication.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authn))

			r.Get("/auth/me", h.ProfileHandler)
			r.Get("/user", h.ProfileHandler)
			r.Put("/user", h.UpdateProfileHandler)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.ListTransactionsHandler)
				r.Post("/deposit", h.DepositHandler)
				r.Post("/withdraw", h.WithdrawHandler)
				r.Post("/withdraw/confirm", h.ConfirmWithdrawHandler)
				r.Post("/transfer", h.TransferHandler)
				r.Post("/transfer/confirm", h.ConfirmTransferHandler)
				r.Put("/minimum-balance", h.SetMinimumBalanceHandler)
			})

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Get("/admin/accounts", h.ListAccountsHandler)
				r.Get("/admin/accounts/{id}/transactions", h.GetAccountTransactionsHandler)
			})
		})
	})

	return r
}
