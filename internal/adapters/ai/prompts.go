package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/avetrov/goldpilot/pkg/models"
	"github.com/avetrov/goldpilot/pkg/templates"
)

var globalTemplates templates.Renderer

// SetTemplateRenderer sets global template renderer (called from main.go at startup)
func SetTemplateRenderer(renderer templates.Renderer) {
	globalTemplates = renderer
}

const userPromptSeparator = "=== USER PROMPT ==="

// buildEntryPrompts renders the entry analysis template
func buildEntryPrompts(entry *EntryContext) (string, string, error) {
	if globalTemplates == nil {
		return "", "", fmt.Errorf("templates not loaded")
	}

	data := map[string]interface{}{
		"Symbol":     entry.Symbol,
		"Bid":        fmt.Sprintf("%.2f", entry.Quote.Bid),
		"Ask":        fmt.Sprintf("%.2f", entry.Quote.Ask),
		"Spread":     fmt.Sprintf("%.2f", entry.Quote.Spread),
		"Indicators": entry.Indicators,
		"CandlesH1":  formatCandles(entry.CandlesH1, 20),
		"CandlesM15": formatCandles(entry.CandlesM15, 20),
	}

	output, err := globalTemplates.ExecuteTemplate("entry_analysis.tmpl", data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render entry_analysis template: %w", err)
	}

	systemPrompt, userPrompt := SplitPrompt(output)
	return systemPrompt, userPrompt, nil
}

// buildGuardianPrompts renders the position guardian template
func buildGuardianPrompts(guard *GuardContext) (string, string, error) {
	if globalTemplates == nil {
		return "", "", fmt.Errorf("templates not loaded")
	}

	pos := guard.Position
	data := map[string]interface{}{
		"Ticket":       pos.Ticket,
		"Symbol":       pos.Symbol,
		"Side":         string(pos.Side),
		"Volume":       fmt.Sprintf("%.2f", pos.Volume),
		"OpenPrice":    fmt.Sprintf("%.2f", pos.OpenPrice),
		"CurrentPrice": fmt.Sprintf("%.2f", pos.CurrentPrice),
		"StopLoss":     fmt.Sprintf("%.2f", pos.StopLoss),
		"TakeProfit":   fmt.Sprintf("%.2f", pos.TakeProfit),
		"Profit":       fmt.Sprintf("%.2f", pos.Profit),
		"ProfitPips":   fmt.Sprintf("%.1f", guard.ProfitPips),
		"Comment":      pos.Comment,
		"Bid":          fmt.Sprintf("%.2f", guard.Quote.Bid),
		"Ask":          fmt.Sprintf("%.2f", guard.Quote.Ask),
		"Indicators":   guard.Indicators,
		"CandlesM15":   formatCandles(guard.CandlesM15, 20),
	}

	output, err := globalTemplates.ExecuteTemplate("guardian_analysis.tmpl", data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render guardian_analysis template: %w", err)
	}

	systemPrompt, userPrompt := SplitPrompt(output)
	return systemPrompt, userPrompt, nil
}

// SplitPrompt splits template output into system and user prompts
func SplitPrompt(output string) (systemPrompt string, userPrompt string) {
	idx := strings.Index(output, userPromptSeparator)
	if idx == -1 {
		return "", strings.TrimSpace(output)
	}

	systemPrompt = strings.TrimSpace(output[:idx])
	userPrompt = strings.TrimSpace(output[idx+len(userPromptSeparator):])
	return systemPrompt, userPrompt
}

// formatCandles renders the last max bars one per line, oldest first
func formatCandles(candles []models.Candle, max int) string {
	if len(candles) > max {
		candles = candles[len(candles)-max:]
	}

	var b strings.Builder
	for _, c := range candles {
		dir := "─"
		if c.Bullish() {
			dir = "▲"
		} else if c.Close < c.Open {
			dir = "▼"
		}
		fmt.Fprintf(&b, "%s O:%.2f H:%.2f L:%.2f C:%.2f %s\n",
			c.Time.UTC().Format("01-02 15:04"), c.Open, c.High, c.Low, c.Close, dir)
	}

	return strings.TrimRight(b.String(), "\n")
}

// === PARSING FUNCTIONS ===

// parseEntryDecision parses AI response into an entry decision
func parseEntryDecision(content string) (*models.EntryDecision, error) {
	jsonStr := extractJSON(content)

	var response struct {
		Decision   string  `json:"decision"`
		EntryPrice float64 `json:"entry_price"`
		StopLoss   float64 `json:"stop_loss"`
		TakeProfit float64 `json:"take_profit"`
		RRRatio    float64 `json:"rr_ratio"`
		Confidence int     `json:"confidence"`
		Reason     string  `json:"reason"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w (content: %s)", err, jsonStr)
	}

	decision := models.EntryAction(strings.ToUpper(strings.TrimSpace(response.Decision)))
	validDecisions := map[models.EntryAction]bool{
		models.EntryBuy:  true,
		models.EntrySell: true,
		models.EntryWait: true,
	}
	if !validDecisions[decision] {
		return nil, fmt.Errorf("invalid decision: %s", response.Decision)
	}

	if response.Confidence < 0 || response.Confidence > 100 {
		return nil, fmt.Errorf("invalid confidence: %d", response.Confidence)
	}

	return &models.EntryDecision{
		Decision:   decision,
		EntryPrice: response.EntryPrice,
		StopLoss:   response.StopLoss,
		TakeProfit: response.TakeProfit,
		RRRatio:    response.RRRatio,
		Confidence: response.Confidence,
		Reason:     response.Reason,
	}, nil
}

// parseGuardVerdict parses AI response into a guardian verdict
func parseGuardVerdict(content string) (*models.GuardVerdict, error) {
	jsonStr := extractJSON(content)

	var response struct {
		Action   string  `json:"action"`
		NewSL    float64 `json:"new_sl"`
		NewTP    float64 `json:"new_tp"`
		Momentum string  `json:"momentum_strength"`
		Reason   string  `json:"reason"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w (content: %s)", err, jsonStr)
	}

	action := models.GuardAction(strings.ToUpper(strings.TrimSpace(response.Action)))
	validActions := map[models.GuardAction]bool{
		models.GuardHold:     true,
		models.GuardModifySL: true,
		models.GuardModifyTP: true,
		models.GuardClose:    true,
		models.GuardAddDCA:   true,
	}
	if !validActions[action] {
		return nil, fmt.Errorf("invalid action: %s", response.Action)
	}

	// Unknown strength downgrades to WEAK rather than rejecting the verdict
	momentum := models.MomentumStrength(strings.ToUpper(strings.TrimSpace(response.Momentum)))
	switch momentum {
	case models.MomentumWeak, models.MomentumMedium, models.MomentumStrong:
	default:
		momentum = models.MomentumWeak
	}

	return &models.GuardVerdict{
		Action:   action,
		NewSL:    response.NewSL,
		NewTP:    response.NewTP,
		Momentum: momentum,
		Reason:   response.Reason,
	}, nil
}

// extractJSON extracts JSON from text that might contain markdown or extra content
func extractJSON(text string) string {
	// Remove markdown code blocks
	re := regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	matches := re.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// Try to find JSON object or array
	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")

	var start int
	var endChar string

	if startObj >= 0 && (startArr < 0 || startObj < startArr) {
		start = startObj
		endChar = "}"
	} else if startArr >= 0 {
		start = startArr
		endChar = "]"
	} else {
		return strings.TrimSpace(text)
	}

	end := strings.LastIndex(text, endChar)
	if end > start {
		return strings.TrimSpace(text[start : end+1])
	}

	return strings.TrimSpace(text)
}
