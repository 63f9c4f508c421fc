// Package telegram sends trade alerts to the operator chat via a bot.
// Message bodies come from text templates so wording can change without a
// rebuild.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/ledger"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
	"github.com/avetrov/goldpilot/pkg/templates"
)

// RequiredTemplates lists the message templates the notifier refuses to
// start without
var RequiredTemplates = []string{
	"trade_opened.tmpl",
	"trade_closed.tmpl",
	"auto_bep.tmpl",
	"dca_added.tmpl",
	"daily_summary.tmpl",
	"error.tmpl",
}

// Notifier sends notifications to the operator chat via Telegram
type Notifier struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	renderer templates.Renderer
	now      func() time.Time
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig, renderer templates.Renderer) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	for _, name := range RequiredTemplates {
		if !renderer.TemplateExists(name) {
			return nil, fmt.Errorf("required template not found: %s", name)
		}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:      bot,
		chatID:   cfg.ChatID,
		renderer: renderer,
		now:      time.Now,
	}, nil
}

// NotifyTrade sends one trade lifecycle alert
func (n *Notifier) NotifyTrade(ctx context.Context, evt models.TradeEvent) error {
	switch evt.Action {
	case models.TradeOpened:
		return n.notifyOpened(evt)
	case models.TradeClosed:
		return n.notifyClosed(evt)
	case models.TradeAutoBEP:
		return n.notifyAutoBEP(evt)
	case models.TradeDCA, models.TradeMomentumDCA:
		return n.notifyDCA(evt)
	default:
		return nil
	}
}

func (n *Notifier) notifyOpened(evt models.TradeEvent) error {
	emoji := "📈"
	if evt.Side == models.SideSell {
		emoji = "📉"
	}

	data := map[string]interface{}{
		"Emoji":      emoji,
		"Side":       string(evt.Side),
		"Symbol":     evt.Symbol,
		"Volume":     evt.Volume,
		"Price":      evt.Price,
		"StopLoss":   evt.StopLoss,
		"TakeProfit": evt.TakeProfit,
		"Confidence": evt.Confidence,
		"Reason":     evt.Reason,
		"Time":       n.now().UTC().Format("15:04:05"),
	}

	return n.render("trade_opened.tmpl", data)
}

func (n *Notifier) notifyClosed(evt models.TradeEvent) error {
	emoji := "💰"
	title := "Trade Closed (Profit)"
	if evt.CloseType == models.CloseTakeProfit {
		title = "Take Profit Hit!"
	}
	if evt.Profit < 0 {
		emoji = "😢"
		title = "Trade Closed (Loss)"
		if evt.CloseType == models.CloseStopLoss {
			title = "Stop Loss Hit!"
		}
	}

	data := map[string]interface{}{
		"Emoji":      emoji,
		"Title":      title,
		"Ticket":     evt.Ticket,
		"Symbol":     evt.Symbol,
		"Profit":     evt.Profit,
		"ProfitSign": signOf(evt.Profit),
		"CloseType":  string(evt.CloseType),
	}

	return n.render("trade_closed.tmpl", data)
}

func (n *Notifier) notifyAutoBEP(evt models.TradeEvent) error {
	data := map[string]interface{}{
		"Ticket":     evt.Ticket,
		"NewSL":      evt.StopLoss,
		"ProfitPips": evt.ProfitPips,
	}

	return n.render("auto_bep.tmpl", data)
}

func (n *Notifier) notifyDCA(evt models.TradeEvent) error {
	data := map[string]interface{}{
		"Momentum":  evt.Action == models.TradeMomentumDCA,
		"Symbol":    evt.Symbol,
		"Side":      string(evt.Side),
		"Volume":    evt.Volume,
		"Count":     evt.Count,
		"PipsMoved": evt.PipsMoved,
	}

	return n.render("dca_added.tmpl", data)
}

// NotifyDailySummary sends the daily profit report
func (n *Notifier) NotifyDailySummary(ctx context.Context, stats *ledger.Stats) error {
	emoji := "📈"
	if stats.TodayProfit < 0 {
		emoji = "📉"
	}

	data := map[string]interface{}{
		"Emoji":       emoji,
		"Date":        n.now().UTC().Format("2006-01-02"),
		"TodayProfit": stats.TodayProfit,
		"TodaySign":   signOf(stats.TodayProfit),
		"TotalProfit": stats.TotalProfit,
		"TotalSign":   signOf(stats.TotalProfit),
		"Balance":     stats.CurrentBalance,
		"TotalTrades": stats.TotalTrades,
		"WinRate":     stats.WinRate,
	}

	return n.render("daily_summary.tmpl", data)
}

// NotifyError sends an error alert
func (n *Notifier) NotifyError(ctx context.Context, message string) error {
	data := map[string]interface{}{
		"Message": message,
		"Time":    n.now().UTC().Format("15:04:05"),
	}

	return n.render("error.tmpl", data)
}

func (n *Notifier) render(templateName string, data map[string]interface{}) error {
	msg, err := n.renderer.ExecuteTemplate(templateName, data)
	if err != nil {
		return err
	}
	return n.sendMessageMarkdown(msg)
}

func (n *Notifier) sendMessageMarkdown(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", n.chatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

func signOf(v float64) string {
	if v > 0 {
		return "+"
	}
	return ""
}
