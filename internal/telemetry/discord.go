package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avetrov/goldpilot/internal/ledger"
	"github.com/avetrov/goldpilot/pkg/models"
)

const (
	colorGreen  = 0x00FF00
	colorRed    = 0xFF0000
	colorBlue   = 0x0099FF
	colorOrange = 0xFFAA00
)

// Discord sends trade alerts to a Discord webhook. An empty webhook URL
// disables the notifier; every method becomes a no-op.
type Discord struct {
	webhookURL string
	enabled    bool
	client     *http.Client
	now        func() time.Time
}

// NewDiscord creates the webhook notifier
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		enabled:    webhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Enabled reports whether a webhook URL is configured
func (d *Discord) Enabled() bool {
	return d.enabled
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

// NotifyTrade renders one trade lifecycle event as an embed
func (d *Discord) NotifyTrade(ctx context.Context, evt models.TradeEvent) error {
	switch evt.Action {
	case models.TradeOpened:
		return d.notifyOpened(ctx, evt)
	case models.TradeClosed:
		return d.notifyClosed(ctx, evt)
	case models.TradeAutoBEP:
		return d.notifyAutoBEP(ctx, evt)
	case models.TradeDCA, models.TradeMomentumDCA:
		return d.notifyDCA(ctx, evt)
	default:
		return nil
	}
}

func (d *Discord) notifyOpened(ctx context.Context, evt models.TradeEvent) error {
	color := colorGreen
	if evt.Side == models.SideSell {
		color = colorRed
	}

	return d.send(ctx, embed{
		Title:       "🚀 New Trade Opened",
		Description: fmt.Sprintf("**%s** %.2f lot %s", evt.Side, evt.Volume, evt.Symbol),
		Color:       color,
		Fields: []embedField{
			{Name: "📍 Entry Price", Value: fmt.Sprintf("`%.2f`", evt.Price), Inline: true},
			{Name: "🛑 Stop Loss", Value: fmt.Sprintf("`%.2f`", evt.StopLoss), Inline: true},
			{Name: "🎯 Take Profit", Value: fmt.Sprintf("`%.2f`", evt.TakeProfit), Inline: true},
		},
	})
}

func (d *Discord) notifyClosed(ctx context.Context, evt models.TradeEvent) error {
	var title string
	color := colorGreen
	if evt.Profit >= 0 {
		title = "💰 Trade Closed (Profit)"
		if evt.CloseType == models.CloseTakeProfit {
			title = "💰 Take Profit Hit!"
		}
	} else {
		color = colorRed
		title = "😢 Trade Closed (Loss)"
		if evt.CloseType == models.CloseStopLoss {
			title = "😢 Stop Loss Hit!"
		}
	}

	return d.send(ctx, embed{
		Title:       title,
		Description: fmt.Sprintf("Position #%d closed", evt.Ticket),
		Color:       color,
		Fields: []embedField{
			{Name: "💵 Profit/Loss", Value: fmt.Sprintf("`$%+.2f`", evt.Profit), Inline: true},
			{Name: "📊 Symbol", Value: fmt.Sprintf("`%s`", evt.Symbol), Inline: true},
			{Name: "📋 Type", Value: fmt.Sprintf("`%s`", evt.CloseType), Inline: true},
		},
	})
}

func (d *Discord) notifyAutoBEP(ctx context.Context, evt models.TradeEvent) error {
	return d.send(ctx, embed{
		Title:       "🔒 Auto Break-Even Triggered",
		Description: fmt.Sprintf("Position #%d is now risk-free!", evt.Ticket),
		Color:       colorBlue,
		Fields: []embedField{
			{Name: "📍 New SL (Entry)", Value: fmt.Sprintf("`%.2f`", evt.StopLoss), Inline: true},
			{Name: "📈 Profit", Value: fmt.Sprintf("`%.1f pips`", evt.ProfitPips), Inline: true},
		},
	})
}

func (d *Discord) notifyDCA(ctx context.Context, evt models.TradeEvent) error {
	title := "📊 DCA Position Added"
	description := fmt.Sprintf("Averaging down on %s", evt.Symbol)
	if evt.Action == models.TradeMomentumDCA {
		title = "🔥 Momentum Position Added"
		description = fmt.Sprintf("Scaling into %s", evt.Symbol)
	}

	return d.send(ctx, embed{
		Title:       title,
		Description: description,
		Color:       colorOrange,
		Fields: []embedField{
			{Name: "📋 Type", Value: fmt.Sprintf("`%s`", evt.Side), Inline: true},
			{Name: "📦 Volume", Value: fmt.Sprintf("`%.2f`", evt.Volume), Inline: true},
			{Name: "🔢 Position #", Value: fmt.Sprintf("`%d`", evt.Count), Inline: true},
			{Name: "📉 Pips Moved", Value: fmt.Sprintf("`%.1f`", evt.PipsMoved), Inline: true},
		},
	})
}

// NotifyDailySummary renders the profit report embed
func (d *Discord) NotifyDailySummary(ctx context.Context, stats *ledger.Stats) error {
	title := "📈 Daily Summary"
	color := colorGreen
	if stats.TodayProfit < 0 {
		title = "📉 Daily Summary"
		color = colorRed
	}

	return d.send(ctx, embed{
		Title:       title,
		Description: fmt.Sprintf("Trading report for %s", d.now().UTC().Format("2006-01-02")),
		Color:       color,
		Fields: []embedField{
			{Name: "💵 Today's P/L", Value: fmt.Sprintf("`$%+.2f`", stats.TodayProfit), Inline: true},
			{Name: "📊 Total P/L", Value: fmt.Sprintf("`$%+.2f`", stats.TotalProfit), Inline: true},
			{Name: "💰 Balance", Value: fmt.Sprintf("`$%.2f`", stats.CurrentBalance), Inline: true},
			{Name: "🔢 Total Trades", Value: fmt.Sprintf("`%d`", stats.TotalTrades), Inline: true},
		},
	})
}

func (d *Discord) send(ctx context.Context, e embed) error {
	if !d.enabled {
		return nil
	}

	now := d.now().UTC()
	e.Footer = embedFooter{Text: "goldpilot • " + now.Format("2006-01-02 15:04:05")}
	e.Timestamp = now.Format(time.RFC3339)

	payload, err := json.Marshal(map[string]any{"embeds": []embed{e}})
	if err != nil {
		return fmt.Errorf("failed to encode discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}

	return nil
}
