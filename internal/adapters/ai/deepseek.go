package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/avetrov/goldpilot/pkg/models"
)

const (
	deepseekAPIURL = "https://api.deepseek.com/v1/chat/completions"
	deepseekModel  = "deepseek-chat"
)

// DeepSeekProvider implements AI provider for DeepSeek
type DeepSeekProvider struct {
	client *client
}

// NewDeepSeek creates new DeepSeek provider
func NewDeepSeek(keys []string, timeout time.Duration) *DeepSeekProvider {
	return &DeepSeekProvider{
		client: newClient("deepseek", deepseekAPIURL, deepseekModel, keys, timeout),
	}
}

func (d *DeepSeekProvider) Name() string {
	return "deepseek"
}

func (d *DeepSeekProvider) AnalyzeEntry(ctx context.Context, entry *EntryContext) (*models.EntryDecision, error) {
	systemPrompt, userPrompt, err := buildEntryPrompts(entry)
	if err != nil {
		return nil, err
	}

	content, err := d.client.chatJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	decision, err := parseEntryDecision(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return decision, nil
}

func (d *DeepSeekProvider) GuardPosition(ctx context.Context, guard *GuardContext) (*models.GuardVerdict, error) {
	systemPrompt, userPrompt, err := buildGuardianPrompts(guard)
	if err != nil {
		return nil, err
	}

	content, err := d.client.chatJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseGuardVerdict(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return verdict, nil
}
