// Package server exposes the control surface of the bot: REST endpoints
// for lifecycle, trading and profit queries, the websocket event stream,
// health probes and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/ledger"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// EngineControl is the slice of the trading engine the API drives
type EngineControl interface {
	Start(ctx context.Context) error
	Stop() error
	Status() models.EngineStatus
}

// ProfitSource answers the profit and reasoning queries
type ProfitSource interface {
	Stats(ctx context.Context) (*ledger.Stats, error)
	ChartData(ctx context.Context, days int) ([]ledger.DailySnapshot, error)
	SyncFromHistory(ctx context.Context, records []models.TradeRecord) (*ledger.SyncResult, error)
	RecentReasoning(ctx context.Context, limit int) ([]models.ReasoningEntry, error)
}

// ProviderSwitch flips the active AI provider at runtime
type ProviderSwitch interface {
	Use(name string) error
	Name() string
	Available() []string
}

// HealthChecker is a pingable dependency surfaced in the readiness probe
type HealthChecker interface {
	Health() error
}

// StreamHandler upgrades an HTTP request into the event stream
type StreamHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Deps carries everything the server exposes. Hub and Checks are optional;
// nil disables the /ws route and the matching readiness checks.
type Deps struct {
	Engine   EngineControl
	Broker   broker.Broker
	Settings *config.Settings
	Profits  ProfitSource
	Provider ProviderSwitch
	Hub      StreamHandler
	Checks   map[string]HealthChecker
}

// Server is the HTTP front of the bot
type Server struct {
	http *http.Server
	deps Deps

	// engineCtx parents the trading loop started over the API, so the loop
	// dies with the process, not with the request
	engineCtx context.Context

	readyMu   sync.RWMutex
	ready     bool
	startTime time.Time
}

// New builds the server and its routes. engineCtx must outlive the server;
// it becomes the parent context of any engine loop started over the API.
func New(engineCtx context.Context, port int, deps Deps) *Server {
	s := &Server{
		deps:      deps,
		engineCtx: engineCtx,
		startTime: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)

	api.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	api.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)

	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handlePatchConfig).Methods(http.MethodPost)

	api.HandleFunc("/order", s.handleOrder).Methods(http.MethodPost)
	// close-all before {ticket} so the literal path is not read as a ticket
	api.HandleFunc("/positions/close-all", s.handleCloseAll).Methods(http.MethodPost)
	api.HandleFunc("/positions/{ticket:[0-9]+}/modify", s.handleModify).Methods(http.MethodPost)
	api.HandleFunc("/positions/{ticket:[0-9]+}/close", s.handleClose).Methods(http.MethodPost)

	api.HandleFunc("/reasoning", s.handleReasoning).Methods(http.MethodGet)
	api.HandleFunc("/ai/provider/{name}", s.handleProviderSwitch).Methods(http.MethodPost)

	api.HandleFunc("/profit/stats", s.handleProfitStats).Methods(http.MethodGet)
	api.HandleFunc("/profit/chart", s.handleProfitChart).Methods(http.MethodGet)
	api.HandleFunc("/profit/sync", s.handleProfitSync).Methods(http.MethodPost)
	api.HandleFunc("/trade/history", s.handleTradeHistory).Methods(http.MethodGet)

	if deps.Hub != nil {
		r.HandleFunc("/ws", deps.Hub.ServeWS)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReadiness).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler exposes the route tree for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Stop is called
func (s *Server) Start() error {
	logger.Info("API server starting", zap.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop gracefully shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping API server...")
	return s.http.Shutdown(ctx)
}

// SetReady marks the service as ready for traffic
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()

	if ready {
		logger.Info("✅ service marked as READY")
	} else {
		logger.Warn("⚠️ service marked as NOT READY")
	}
}

// healthStatus is the liveness probe payload
type healthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// readinessStatus is the readiness probe payload
type readinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Clients   int               `json:"ws_clients"`
}

// handleHealth answers the liveness probe: 200 while the process is alive,
// dependency state only on request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks = s.runChecks()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleReadiness answers the readiness probe: ready flag plus every
// registered dependency check.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	checks := s.runChecks()
	for _, state := range checks {
		if state != "healthy" {
			ready = false
		}
	}

	status := readinessStatus{
		Ready:     ready,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if s.deps.Hub != nil {
		status.Clients = s.deps.Hub.ClientCount()
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, status)
}

func (s *Server) runChecks() map[string]string {
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check.Health(); err != nil {
			checks[name] = "unhealthy: " + err.Error()
		} else {
			checks[name] = "healthy"
		}
	}
	return checks
}
