package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/avetrov/goldpilot/internal/indicators"
	"github.com/avetrov/goldpilot/pkg/models"
	"github.com/avetrov/goldpilot/pkg/templates"
)

// loadTemplates loads the repository templates for prompt tests
func loadTemplates(t *testing.T) {
	t.Helper()

	manager, err := templates.NewManager("../../../templates")
	if err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}
	SetTemplateRenderer(manager)
}

func TestPromptTemplatesLoaded(t *testing.T) {
	manager, err := templates.NewManager("../../../templates")
	if err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}

	requiredTemplates := []string{
		"entry_analysis.tmpl",
		"guardian_analysis.tmpl",
	}

	for _, tmpl := range requiredTemplates {
		if !manager.TemplateExists(tmpl) {
			t.Errorf("Required template not found: %s", tmpl)
		}
	}
}

func TestBuildEntryPrompts(t *testing.T) {
	loadTemplates(t)

	entry := &EntryContext{
		Symbol: "XAUUSD",
		Quote:  models.Quote{Symbol: "XAUUSD", Bid: 2499.80, Ask: 2500.00, Spread: 0.20},
		Indicators: &indicators.Snapshot{
			RSI14: 62.5,
			EMA20: 2495.10,
			EMA50: 2488.40,
			ATR14: 3.20,
			Trend: "uptrend",
		},
		CandlesH1:  sampleCandles(5, 2480, 4.0),
		CandlesM15: sampleCandles(5, 2496, 1.0),
	}

	systemPrompt, userPrompt, err := buildEntryPrompts(entry)
	if err != nil {
		t.Fatalf("buildEntryPrompts: %v", err)
	}

	if !strings.Contains(systemPrompt, "JSON") {
		t.Error("System prompt should describe the JSON response format")
	}
	if !strings.Contains(userPrompt, "XAUUSD") {
		t.Error("User prompt missing symbol")
	}
	if !strings.Contains(userPrompt, "RSI(14): 62.5") {
		t.Error("User prompt missing RSI value")
	}
	if !strings.Contains(userPrompt, "2500.00") {
		t.Error("User prompt missing ask price")
	}
	if !strings.Contains(userPrompt, "▲") {
		t.Error("User prompt missing candle direction markers")
	}
}

func TestBuildGuardianPrompts(t *testing.T) {
	loadTemplates(t)

	guard := &GuardContext{
		Position: models.Position{
			Ticket:       100123,
			Symbol:       "XAUUSD",
			Side:         models.SideBuy,
			Volume:       0.01,
			OpenPrice:    2500.00,
			CurrentPrice: 2505.20,
			StopLoss:     2494.00,
			TakeProfit:   2512.00,
			Profit:       5.20,
			Comment:      "AI_75",
		},
		Quote:      models.Quote{Bid: 2505.20, Ask: 2505.40},
		CandlesM15: sampleCandles(5, 2500, 1.0),
		ProfitPips: 52.0,
	}

	systemPrompt, userPrompt, err := buildGuardianPrompts(guard)
	if err != nil {
		t.Fatalf("buildGuardianPrompts: %v", err)
	}

	if !strings.Contains(systemPrompt, "ADD_DCA") {
		t.Error("System prompt should list the available actions")
	}
	if !strings.Contains(userPrompt, "#100123") {
		t.Error("User prompt missing ticket")
	}
	if !strings.Contains(userPrompt, "BUY") {
		t.Error("User prompt missing side")
	}
	if !strings.Contains(userPrompt, "52.0 pips") {
		t.Error("User prompt missing profit pips")
	}
}

func TestSplitPrompt(t *testing.T) {
	t.Run("with separator", func(t *testing.T) {
		system, user := SplitPrompt("system part\n=== USER PROMPT ===\nuser part")
		if system != "system part" {
			t.Errorf("unexpected system prompt: %q", system)
		}
		if user != "user part" {
			t.Errorf("unexpected user prompt: %q", user)
		}
	})

	t.Run("without separator", func(t *testing.T) {
		system, user := SplitPrompt("  just text  ")
		if system != "" {
			t.Errorf("expected empty system prompt, got %q", system)
		}
		if user != "just text" {
			t.Errorf("unexpected user prompt: %q", user)
		}
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fenced json block",
			input:    "Here you go:\n```json\n{\"decision\": \"BUY\"}\n```",
			expected: `{"decision": "BUY"}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "object wrapped in prose",
			input:    `Sure. {"decision": "WAIT"} Hope that helps!`,
			expected: `{"decision": "WAIT"}`,
		},
		{
			name:     "clean object",
			input:    `{"action": "HOLD"}`,
			expected: `{"action": "HOLD"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON(tt.input)
			if got != tt.expected {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseEntryDecision(t *testing.T) {
	t.Run("valid buy", func(t *testing.T) {
		content := `{"decision": "BUY", "entry_price": 2500.0, "stop_loss": 2494.0, "take_profit": 2512.0, "rr_ratio": 2.0, "confidence": 75, "reason": "breakout"}`

		decision, err := parseEntryDecision(content)
		if err != nil {
			t.Fatalf("parseEntryDecision: %v", err)
		}
		if decision.Decision != models.EntryBuy {
			t.Errorf("expected BUY, got %s", decision.Decision)
		}
		if decision.Confidence != 75 {
			t.Errorf("expected confidence 75, got %d", decision.Confidence)
		}
		if decision.StopLoss != 2494.0 {
			t.Errorf("expected stop loss 2494, got %v", decision.StopLoss)
		}
	})

	t.Run("lowercase decision normalized", func(t *testing.T) {
		decision, err := parseEntryDecision(`{"decision": "wait", "confidence": 30, "reason": "chop"}`)
		if err != nil {
			t.Fatalf("parseEntryDecision: %v", err)
		}
		if decision.Decision != models.EntryWait {
			t.Errorf("expected WAIT, got %s", decision.Decision)
		}
	})

	t.Run("invalid decision rejected", func(t *testing.T) {
		_, err := parseEntryDecision(`{"decision": "MAYBE", "confidence": 50}`)
		if err == nil {
			t.Error("expected error for unknown decision")
		}
	})

	t.Run("confidence out of range rejected", func(t *testing.T) {
		_, err := parseEntryDecision(`{"decision": "BUY", "confidence": 140}`)
		if err == nil {
			t.Error("expected error for confidence over 100")
		}
	})
}

func TestParseGuardVerdict(t *testing.T) {
	t.Run("add dca with strength", func(t *testing.T) {
		verdict, err := parseGuardVerdict(`{"action": "ADD_DCA", "momentum_strength": "STRONG", "reason": "breakout continuation"}`)
		if err != nil {
			t.Fatalf("parseGuardVerdict: %v", err)
		}
		if verdict.Action != models.GuardAddDCA {
			t.Errorf("expected ADD_DCA, got %s", verdict.Action)
		}
		if verdict.Momentum != models.MomentumStrong {
			t.Errorf("expected STRONG, got %s", verdict.Momentum)
		}
	})

	t.Run("missing strength defaults to weak", func(t *testing.T) {
		verdict, err := parseGuardVerdict(`{"action": "HOLD", "reason": "nothing to do"}`)
		if err != nil {
			t.Fatalf("parseGuardVerdict: %v", err)
		}
		if verdict.Momentum != models.MomentumWeak {
			t.Errorf("expected WEAK default, got %s", verdict.Momentum)
		}
	})

	t.Run("modify sl carries level", func(t *testing.T) {
		verdict, err := parseGuardVerdict(`{"action": "modify_sl", "new_sl": 2501.5, "reason": "lock in"}`)
		if err != nil {
			t.Fatalf("parseGuardVerdict: %v", err)
		}
		if verdict.Action != models.GuardModifySL {
			t.Errorf("expected MODIFY_SL, got %s", verdict.Action)
		}
		if verdict.NewSL != 2501.5 {
			t.Errorf("expected new SL 2501.5, got %v", verdict.NewSL)
		}
	})

	t.Run("invalid action rejected", func(t *testing.T) {
		_, err := parseGuardVerdict(`{"action": "PANIC"}`)
		if err == nil {
			t.Error("expected error for unknown action")
		}
	})
}

// sampleCandles builds rising bars for prompt tests
func sampleCandles(count int, start, step float64) []models.Candle {
	candles := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		open := start + float64(i)*step
		candles[i] = models.Candle{
			Time:   time.Date(2025, 1, 2, 10, i*15, 0, 0, time.UTC),
			Open:   open,
			High:   open + step*1.2,
			Low:    open - step*0.2,
			Close:  open + step,
			Volume: 1000,
		}
	}
	return candles
}
