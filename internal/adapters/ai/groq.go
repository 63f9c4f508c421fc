package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/avetrov/goldpilot/pkg/models"
)

const (
	groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	groqModel  = "llama-3.3-70b-versatile"
)

// GroqProvider implements AI provider for Groq
type GroqProvider struct {
	client *client
}

// NewGroq creates new Groq provider
func NewGroq(keys []string, timeout time.Duration) *GroqProvider {
	return &GroqProvider{
		client: newClient("groq", groqAPIURL, groqModel, keys, timeout),
	}
}

func (g *GroqProvider) Name() string {
	return "groq"
}

func (g *GroqProvider) AnalyzeEntry(ctx context.Context, entry *EntryContext) (*models.EntryDecision, error) {
	systemPrompt, userPrompt, err := buildEntryPrompts(entry)
	if err != nil {
		return nil, err
	}

	content, err := g.client.chatJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	decision, err := parseEntryDecision(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return decision, nil
}

func (g *GroqProvider) GuardPosition(ctx context.Context, guard *GuardContext) (*models.GuardVerdict, error) {
	systemPrompt, userPrompt, err := buildGuardianPrompts(guard)
	if err != nil {
		return nil, err
	}

	content, err := g.client.chatJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseGuardVerdict(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return verdict, nil
}
