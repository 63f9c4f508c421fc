package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

const bridgeUserAgent = "goldpilot/1.0"

// StatusError reports a non-2xx response from the bridge
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge returned %d: %s", e.Code, e.Body)
}

// Bridge talks to an MT5 bridge sidecar over HTTP. The sidecar owns the
// terminal connection; this adapter only translates calls to its REST API.
type Bridge struct {
	baseURL   string
	hc        *http.Client
	connected atomic.Bool
}

// NewBridge creates a bridge client for the given base URL
func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

// Connect establishes the terminal session on the sidecar
func (b *Bridge) Connect(ctx context.Context) error {
	if err := b.post(ctx, "/api/connect", nil, nil); err != nil {
		return fmt.Errorf("failed to connect bridge: %w", err)
	}
	b.connected.Store(true)
	logger.Info("bridge connected", zap.String("url", b.baseURL))
	return nil
}

// Disconnect tears the terminal session down
func (b *Bridge) Disconnect(ctx context.Context) error {
	if !b.connected.Load() {
		return nil
	}
	b.connected.Store(false)
	if err := b.post(ctx, "/api/disconnect", nil, nil); err != nil {
		return fmt.Errorf("failed to disconnect bridge: %w", err)
	}
	logger.Info("bridge disconnected")
	return nil
}

// IsConnected reports whether the terminal session is established
func (b *Bridge) IsConnected() bool {
	return b.connected.Load()
}

// Quote returns the live bid/ask for a symbol
func (b *Bridge) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var quote models.Quote
	q := url.Values{"symbol": {symbol}}
	if err := b.get(ctx, "/api/quote", q, &quote); err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	return &quote, nil
}

// Candles returns up to count recent bars for the timeframe
func (b *Bridge) Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var candles []models.Candle
	q := url.Values{
		"symbol":    {symbol},
		"timeframe": {timeframe},
		"count":     {strconv.Itoa(count)},
	}
	if err := b.get(ctx, "/api/candles", q, &candles); err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}
	return candles, nil
}

// IsMarketOpen reports whether the symbol is tradable right now
func (b *Bridge) IsMarketOpen(ctx context.Context, symbol string) (bool, error) {
	if !b.connected.Load() {
		return false, ErrNotConnected
	}

	var resp struct {
		Open bool `json:"open"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := b.get(ctx, "/api/market/open", q, &resp); err != nil {
		return false, fmt.Errorf("failed to check market state: %w", err)
	}
	return resp.Open, nil
}

// Account returns the current account snapshot
func (b *Bridge) Account(ctx context.Context) (*models.AccountSnapshot, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var account models.AccountSnapshot
	if err := b.get(ctx, "/api/account", nil, &account); err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return &account, nil
}

// Positions returns the open positions for a symbol, oldest first
func (b *Bridge) Positions(ctx context.Context, symbol string) ([]models.Position, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var positions []models.Position
	q := url.Values{"symbol": {symbol}}
	if err := b.get(ctx, "/api/positions", q, &positions); err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}
	return positions, nil
}

// TradeHistory returns closed deals for the last N days
func (b *Bridge) TradeHistory(ctx context.Context, symbol string, days int) ([]models.TradeRecord, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var records []models.TradeRecord
	q := url.Values{
		"symbol": {symbol},
		"days":   {strconv.Itoa(days)},
	}
	if err := b.get(ctx, "/api/history", q, &records); err != nil {
		return nil, fmt.Errorf("failed to fetch trade history: %w", err)
	}
	return records, nil
}

// PlaceMarketOrder submits a market order and returns the fill
func (b *Bridge) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*models.OrderResult, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var result models.OrderResult
	if err := b.post(ctx, "/api/orders", req, &result); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	logger.Info("order placed",
		zap.String("side", string(req.Side)),
		zap.Float64("volume", req.Volume),
		zap.Int64("ticket", result.Ticket),
		zap.Float64("price", result.Price),
	)
	return &result, nil
}

// ModifyPosition updates SL/TP on an open position
func (b *Bridge) ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}

	body := struct {
		StopLoss   float64 `json:"sl"`
		TakeProfit float64 `json:"tp"`
	}{StopLoss: sl, TakeProfit: tp}

	path := fmt.Sprintf("/api/positions/%d/modify", ticket)
	if err := b.post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("failed to modify position %d: %w", ticket, err)
	}
	return nil
}

// ClosePosition closes an open position at market
func (b *Bridge) ClosePosition(ctx context.Context, ticket int64) (*models.CloseResult, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	var result models.CloseResult
	path := fmt.Sprintf("/api/positions/%d/close", ticket)
	if err := b.post(ctx, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to close position %d: %w", ticket, err)
	}
	return &result, nil
}

func (b *Bridge) get(ctx context.Context, path string, query url.Values, out any) error {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *Bridge) post(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.do(req, out)
}

func (b *Bridge) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", bridgeUserAgent)

	resp, err := b.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode bridge response: %w", err)
	}
	return nil
}
