package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
)

const (
	// maxAttempts bounds key rotation when every key is throttled
	maxAttempts      = 3
	rateLimitBackoff = time.Second
)

// client is the OpenAI-compatible chat client shared by providers.
// Keys rotate on rate limiting so a throttled key does not stall analysis.
type client struct {
	name    string
	url     string
	model   string
	hc      *http.Client
	backoff time.Duration

	mu     sync.Mutex
	keys   []string
	keyIdx int
}

func newClient(name, url, model string, keys []string, timeout time.Duration) *client {
	return &client{
		name:    name,
		url:     url,
		model:   model,
		keys:    keys,
		hc:      &http.Client{Timeout: timeout},
		backoff: rateLimitBackoff,
	}
}

func (c *client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[c.keyIdx]
}

func (c *client) rotateKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyIdx = (c.keyIdx + 1) % len(c.keys)
}

// chatJSON sends one chat completion and returns the raw message content
func (c *client) chatJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":     0.3,
		"max_tokens":      1024,
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		content, retryable, err := c.send(ctx, jsonData)
		if err == nil {
			return content, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err

		logger.Warn("AI provider rate limited, rotating API key",
			zap.String("provider", c.name),
			zap.Int("attempt", attempt+1),
		)
		c.rotateKey()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	return "", fmt.Errorf("all attempts rate limited: %w", lastErr)
}

func (c *client) send(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.currentKey()))

	startTime := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return "", true, fmt.Errorf("rate limited (status 429): %s", string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", false, fmt.Errorf("no choices in response")
	}

	logger.Debug("AI response received",
		zap.String("provider", c.name),
		zap.String("model", c.model),
		zap.Duration("latency", time.Since(startTime)),
	)

	return result.Choices[0].Message.Content, false, nil
}
