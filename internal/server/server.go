package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/server/handler"
	"github.com/alanyoungcy/bondledger/internal/server/middleware"
	"github.com/alanyoungcy/bondledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per minute per client IP; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Bonds    *handler.BondHandler
	Issuers  *handler.IssuerHandler
	Treasury *handler.TreasuryHandler
	Admin    *handler.AdminHandler
}

// Server is the headless HTTP + WebSocket API server for the bond ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Bond lifecycle and trading endpoints.
	mux.HandleFunc("GET /api/bonds", handlers.Bonds.ListBonds)
	mux.HandleFunc("POST /api/bonds", handlers.Bonds.CreateBond)
	mux.HandleFunc("GET /api/bonds/{id}", handlers.Bonds.GetBond)
	mux.HandleFunc("GET /api/bonds/{id}/holdings", handlers.Bonds.ListHoldings)
	mux.HandleFunc("POST /api/bonds/{id}/submit", handlers.Bonds.SubmitBond)
	mux.HandleFunc("POST /api/bonds/{id}/review", handlers.Bonds.ReviewBond)
	mux.HandleFunc("POST /api/bonds/{id}/approve", handlers.Bonds.ApproveBond)
	mux.HandleFunc("POST /api/bonds/{id}/issue", handlers.Bonds.IssueBond)
	mux.HandleFunc("POST /api/bonds/{id}/buy", handlers.Bonds.BuyBond)
	mux.HandleFunc("POST /api/bonds/{id}/redeem", handlers.Bonds.RedeemBond)
	mux.HandleFunc("POST /api/bonds/{id}/mature", handlers.Bonds.MarkMature)
	mux.HandleFunc("POST /api/bonds/{id}/force-close", handlers.Bonds.ForceClose)

	// Investor position lookup.
	mux.HandleFunc("GET /api/holdings/{wallet}", handlers.Bonds.ListWalletHoldings)

	// Issuer registration and KYC endpoints.
	mux.HandleFunc("GET /api/issuers", handlers.Issuers.ListIssuers)
	mux.HandleFunc("POST /api/issuers/register", handlers.Issuers.Register)
	mux.HandleFunc("GET /api/issuers/{wallet}", handlers.Issuers.GetIssuer)
	mux.HandleFunc("POST /api/issuers/{wallet}/kyc/approve", handlers.Issuers.ApproveKYC)
	mux.HandleFunc("POST /api/issuers/{wallet}/kyc/revoke", handlers.Issuers.RevokeKYC)

	// Treasury endpoints.
	mux.HandleFunc("GET /api/treasury", handlers.Treasury.GetBalance)
	mux.HandleFunc("POST /api/treasury/fund", handlers.Treasury.Fund)
	mux.HandleFunc("GET /api/treasury/ledger", handlers.Treasury.ListLedger)

	// Admin endpoints.
	mux.HandleFunc("GET /api/admin/status", handlers.Admin.GetStatus)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)
	mux.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)
	mux.HandleFunc("POST /api/admin/unpause", handlers.Admin.Unpause)
	mux.HandleFunc("POST /api/admin/transfer", handlers.Admin.TransferAdmin)
	mux.HandleFunc("POST /api/admin/emergency-withdraw", handlers.Admin.EmergencyWithdraw)
	mux.HandleFunc("POST /api/admin/upgrade", handlers.Admin.Upgrade)
	mux.HandleFunc("GET /api/admin/archive", handlers.Admin.ListArchive)
	mux.HandleFunc("GET /api/admin/archive/{path...}", handlers.Admin.GetArchive)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-IP rate limiting when a limiter is configured.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0 // allow all if none specified
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
