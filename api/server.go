/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/funds/*          Funds, particular listing, summaries
  /api/particulars/*    Particular management
  /api/transactions/*   Ledger and approval workflow
  /api/reports/*        COA reports and derived views
  /api/budgets/*        Fiscal year budget setup

SEE ALSO:
  - handlers.go, transactions.go, reports.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Fund routes
		r.Route("/funds", func(r chi.Router) {
			r.Get("/", h.ListFunds)
			r.Post("/", h.CreateFund)
			r.Get("/summary", h.FundSummary)
			r.Get("/by-category", h.FundSummaryByCategory)
			r.Get("/low-balance", h.LowBalanceFunds)
			r.Get("/compliance", h.MandatedCompliance)
			r.Get("/{id}", h.GetFund)
			r.Put("/{id}", h.UpdateFund)
			r.Delete("/{id}", h.DeleteFund)
			r.Get("/{id}/particulars", h.ListParticulars)
			r.Get("/{id}/monthly", h.FundMonthlySummary)
		})

		// Particular routes
		r.Route("/particulars", func(r chi.Router) {
			r.Post("/", h.CreateParticular)
			r.Get("/{id}", h.GetParticular)
			r.Put("/{id}", h.UpdateParticular)
			r.Delete("/{id}", h.DeleteParticular)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/pending", h.PendingApprovals)
			r.Get("/recent", h.RecentTransactions)
			r.Get("/statistics", h.TransactionStatistics)
			r.Get("/next-number", h.NextNumbers)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/{id}/status", h.UpdateTransactionStatus)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.ListReports)
			r.Post("/generate", h.GenerateReport)
			r.Get("/utilization", h.BudgetUtilization)
			r.Get("/cash-flow", h.CashFlow)
			r.Get("/{id}", h.GetReport)
			r.Post("/{id}/status", h.UpdateReportStatus)
			r.Delete("/{id}", h.DeleteReport)
		})

		// Budget routes
		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", h.ListBudgets)
			r.Post("/", h.CreateBudget)
			r.Get("/{id}", h.GetBudget)
			r.Put("/{id}", h.UpdateBudget)
		})
	})

	return r
}
