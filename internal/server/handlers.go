package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/engine"
	"github.com/avetrov/goldpilot/internal/telemetry"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

const (
	defaultReasoningLimit = 50
	defaultChartDays      = 30
	defaultHistoryDays    = 7
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "goldpilot",
		"running": s.deps.Engine.Status().Running,
	})
}

// statusResponse extends the engine status with the live market state
type statusResponse struct {
	models.EngineStatus
	MarketOpen bool `json:"market_open"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Engine.Status()

	resp := statusResponse{EngineStatus: status}
	if status.Connected {
		open, err := s.deps.Broker.IsMarketOpen(r.Context(), status.Symbol)
		if err != nil {
			logger.Warn("market state check failed", zap.Error(err))
		} else {
			resp.MarketOpen = open
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The loop outlives the request: it is parented to the process context
	if err := s.deps.Engine.Start(s.engineCtx); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Engine.Stop(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.Status())
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	quote, err := s.deps.Broker.Quote(r.Context(), s.symbol())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.deps.Broker.Account(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.deps.Broker.Positions(r.Context(), s.symbol())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// configView is the JSON shape of the trading parameters. The tunable
// subset matches config.TradingPatch field for field.
type configView struct {
	Symbol               string              `json:"symbol"`
	PipSize              float64             `json:"pip_size"`
	BaseLot              float64             `json:"base_lot"`
	MaxPositions         int                 `json:"max_positions"`
	MaxSLDistance        float64             `json:"max_sl_distance"`
	MinConfidence        int                 `json:"min_confidence"`
	TickInterval         string              `json:"tick_interval"`
	EntryInterval        string              `json:"entry_interval"`
	GuardianInterval     string              `json:"guardian_interval"`
	CooldownDuration     string              `json:"sl_cooldown"`
	AutoBEPEnabled       bool                `json:"auto_bep_enabled"`
	BEPTriggerPips       float64             `json:"auto_bep_pips"`
	DCAStepPips          float64             `json:"dca_step_pips"`
	DCADirection         config.DCADirection `json:"dca_direction"`
	SessionFilterEnabled bool                `json:"session_filter_enabled"`
	AllowedSessions      []string            `json:"allowed_sessions"`
}

func viewOf(trading config.TradingConfig) configView {
	return configView{
		Symbol:               trading.Symbol,
		PipSize:              trading.PipSize,
		BaseLot:              trading.BaseLot,
		MaxPositions:         trading.MaxPositions,
		MaxSLDistance:        trading.MaxSLDistance,
		MinConfidence:        trading.MinConfidence,
		TickInterval:         trading.TickInterval.String(),
		EntryInterval:        trading.EntryInterval.String(),
		GuardianInterval:     trading.GuardianInterval.String(),
		CooldownDuration:     trading.CooldownDuration.String(),
		AutoBEPEnabled:       trading.AutoBEPEnabled,
		BEPTriggerPips:       trading.BEPTriggerPips,
		DCAStepPips:          trading.DCAStepPips,
		DCADirection:         trading.DCADirection,
		SessionFilterEnabled: trading.SessionFilterEnabled,
		AllowedSessions:      trading.AllowedSessions,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(s.deps.Settings.Trading()))
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.TradingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := s.deps.Settings.Apply(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger.Info("trading settings updated over API")
	writeJSON(w, http.StatusOK, viewOf(updated))
}

// orderRequest is a manual market order from the API. Symbol and volume
// fall back to the configured defaults.
type orderRequest struct {
	Symbol     string      `json:"symbol"`
	Side       models.Side `json:"side"`
	Volume     float64     `json:"volume"`
	StopLoss   float64     `json:"sl"`
	TakeProfit float64     `json:"tp"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Side != models.SideBuy && req.Side != models.SideSell {
		writeError(w, http.StatusBadRequest, errors.New("side must be BUY or SELL"))
		return
	}

	trading := s.deps.Settings.Trading()
	if req.Symbol == "" {
		req.Symbol = trading.Symbol
	}
	if req.Volume <= 0 {
		req.Volume = trading.BaseLot
	}

	result, err := s.deps.Broker.PlaceMarketOrder(r.Context(), broker.OrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    "MANUAL_TRADE",
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	telemetry.IncOrder("manual")
	logger.Info("manual order placed",
		zap.String("side", string(req.Side)),
		zap.Float64("volume", req.Volume),
		zap.Int64("ticket", result.Ticket),
	)
	writeJSON(w, http.StatusOK, result)
}

// modifyRequest carries a manual SL/TP change; zero leaves a field as is
type modifyRequest struct {
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	ticket, err := ticketVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req modifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.deps.Broker.ModifyPosition(r.Context(), ticket, req.StopLoss, req.TakeProfit); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket, "sl": req.StopLoss, "tp": req.TakeProfit})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	ticket, err := ticketVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.deps.Broker.ClosePosition(r.Context(), ticket)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	logger.Info("position closed over API",
		zap.Int64("ticket", ticket),
		zap.Float64("profit", result.Profit),
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCloseAll(w http.ResponseWriter, r *http.Request) {
	positions, err := s.deps.Broker.Positions(r.Context(), s.symbol())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	closed := make([]*models.CloseResult, 0, len(positions))
	for _, p := range positions {
		result, err := s.deps.Broker.ClosePosition(r.Context(), p.Ticket)
		if err != nil {
			logger.Error("close-all: position close failed",
				zap.Int64("ticket", p.Ticket),
				zap.Error(err),
			)
			continue
		}
		closed = append(closed, result)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requested": len(positions),
		"closed":    closed,
	})
}

func (s *Server) handleReasoning(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultReasoningLimit)

	entries, err := s.deps.Profits.RecentReasoning(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleProviderSwitch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.deps.Provider.Use(name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger.Info("AI provider switched", zap.String("provider", name))
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":  s.deps.Provider.Name(),
		"available": s.deps.Provider.Available(),
	})
}

func (s *Server) handleProfitStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Profits.Stats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProfitChart(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultChartDays)

	chart, err := s.deps.Profits.ChartData(r.Context(), days)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (s *Server) handleProfitSync(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultChartDays)

	records, err := s.deps.Broker.TradeHistory(r.Context(), s.symbol(), days)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result, err := s.deps.Profits.SyncFromHistory(r.Context(), records)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	logger.Info("profit counters synced from broker history",
		zap.Int("trades", len(records)),
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultHistoryDays)

	records, err := s.deps.Broker.TradeHistory(r.Context(), s.symbol(), days)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) symbol() string {
	return s.deps.Settings.Trading().Symbol
}

func ticketVar(r *http.Request) (int64, error) {
	ticket, err := strconv.ParseInt(mux.Vars(r)["ticket"], 10, 64)
	if err != nil {
		return 0, errors.New("invalid ticket")
	}
	return ticket, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// statusFor maps engine and broker failures onto HTTP statuses: lifecycle
// conflicts 409, a missing broker session 503, bridge rejections 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning), errors.Is(err, engine.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, broker.ErrNotConnected):
		return http.StatusServiceUnavailable
	}

	var bridgeErr *broker.StatusError
	if errors.As(err, &bridgeErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
