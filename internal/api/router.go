/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * middleware. The webhook endpoint sits outside the authenticated group: it is
 * authenticated by its HMAC signature, not by a bearer token.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, webhook *WebhookHandler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway callbacks: HMAC-authenticated, never bearer-authenticated.
	r.Post("/webhooks/paystack", webhook.ServeHTTP)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Money movement endpoints
		r.Post("/settlements/deposits", h.DirectDepositHandler)
		r.Post("/settlements/deposits/initiate", h.InitiateDepositHandler)
		r.Post("/settlements/withdrawals", h.WithdrawalHandler)
		r.Post("/settlements/transfers", h.TransferHandler)

		// Account inspection endpoints
		r.Get("/accounts/{accountID}/balance", h.BalanceHandler)
		r.Get("/accounts/{accountID}/transactions", h.TransactionsHandler)

		// Bank directory endpoints
		r.Get("/banks", h.ListBanksHandler)
		r.Get("/banks/resolve", h.ResolveAccountHandler)
	})

	return r
}
