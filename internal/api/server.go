// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-explorer/internal/logging"
	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/service"
	"github.com/wallet-explorer/internal/types"
)

// Service interfaces for dependency injection and testing

// QueryServiceInterface defines the interface for query service operations
type QueryServiceInterface interface {
	FetchPage(ctx context.Context, address string, direction types.PageDirection, rawCursor string, force bool) (*service.TransactionPage, error)
	GetTransaction(ctx context.Context, hash string) (*models.Transaction, error)
	Summarize(ctx context.Context, address string) (*service.AddressSummary, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	queryService QueryServiceInterface
	db           Pinger
	cache        Pinger
	logger       *logging.Logger
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int // per-client requests per second
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	queryService QueryServiceInterface,
	db Pinger,
	cache Pinger,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		queryService: queryService,
		db:           db,
		cache:        cache,
		logger:       logger.WithField("component", "api"),
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// OPTIONS is matched so preflight requests reach the CORS middleware
	// instead of 404ing at the router.
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/transactions/{address}", s.handleGetTransactions).Methods("GET", "OPTIONS")
	api.HandleFunc("/transaction/{hash}", s.handleGetTransaction).Methods("GET", "OPTIONS")
	api.HandleFunc("/graph/{address}", s.handleGetGraph).Methods("GET", "OPTIONS")
	api.HandleFunc("/address/{address}", s.handleGetAddress).Methods("GET", "OPTIONS")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
