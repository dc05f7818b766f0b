package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shaharnoy/Klettrack-sub002/internal/serverdb"
	syncengine "github.com/shaharnoy/Klettrack-sub002/internal/sync"
)

// Server is the HTTP API server for klettrack-sync.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	records     *sql.DB
	metrics     *Metrics
	rateLimiter *RateLimiter
}

// NewServer creates a new Server with the given config and auth store, and
// opens the record store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	records, err := openRecordsDB(cfg.RecordsDBPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		store:       store,
		records:     records,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func openRecordsDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := syncengine.InitRecordStore(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the server and closes the record store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.records.Close()
	return err
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Sync
	mux.HandleFunc("POST /v1/sync/push", s.requireAuth(s.withRateLimit(s.handleSyncPush, s.config.RateLimitPush)))
	mux.HandleFunc("POST /v1/sync/pull", s.requireAuth(s.withRateLimit(s.handleSyncPull, s.config.RateLimitPull)))

	// Auth
	mux.HandleFunc("GET /v1/auth/whoami", s.requireAuth(s.withRateLimit(s.handleWhoAmI, s.config.RateLimitOther)))

	// Anything else hitting the API paths is a method error so browsers and
	// misconfigured clients get a machine-readable body instead of the
	// stdlib's text 405.
	mux.HandleFunc("/v1/sync/push", s.handleMethodNotAllowed)
	mux.HandleFunc("/v1/sync/pull", s.handleMethodNotAllowed)
	mux.HandleFunc("/v1/auth/whoami", s.handleMethodNotAllowedGet)

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, s.corsMiddleware, maxBytesMiddleware(10<<20))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST")
	writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "use POST")
}

func (s *Server) handleMethodNotAllowedGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET")
	writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "use GET")
}

// whoAmIResponse is the body for GET /v1/auth/whoami.
type whoAmIResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// handleWhoAmI reports the account behind the presented API key. Clients use
// it at login to learn and persist their user id.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, whoAmIResponse{UserID: user.UserID, Email: user.Email})
}

// handleHealth returns a health check response, pinging the auth store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
