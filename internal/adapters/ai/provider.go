package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/avetrov/goldpilot/internal/indicators"
	"github.com/avetrov/goldpilot/pkg/models"
)

// Provider represents AI provider interface
type Provider interface {
	// Name returns provider name
	Name() string

	// AnalyzeEntry analyzes market context and proposes an entry
	AnalyzeEntry(ctx context.Context, entry *EntryContext) (*models.EntryDecision, error)

	// GuardPosition reviews an open position and proposes an action
	GuardPosition(ctx context.Context, guard *GuardContext) (*models.GuardVerdict, error)
}

// EntryContext carries the market data behind an entry decision
type EntryContext struct {
	Symbol     string
	Quote      models.Quote
	CandlesH1  []models.Candle
	CandlesM15 []models.Candle
	Indicators *indicators.Snapshot
}

// GuardContext carries an open position and its market backdrop
type GuardContext struct {
	Position   models.Position
	Quote      models.Quote
	CandlesM15 []models.Candle
	Indicators *indicators.Snapshot
	ProfitPips float64
}

// Selector routes calls to the active provider and supports switching at runtime
type Selector struct {
	mu     sync.RWMutex
	active Provider
	byName map[string]Provider
}

// NewSelector creates a selector with the named provider active
func NewSelector(active string, providers ...Provider) (*Selector, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no AI providers configured")
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	s := &Selector{byName: byName}
	if err := s.Use(active); err != nil {
		return nil, err
	}
	return s, nil
}

// Use switches the active provider
func (s *Selector) Use(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown AI provider: %s (available: %s)", name, strings.Join(s.names(), ", "))
	}
	s.active = p
	return nil
}

// names returns registered provider names sorted; callers hold the lock
func (s *Selector) names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns registered provider names
func (s *Selector) Available() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names()
}

func (s *Selector) current() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Name returns the active provider name
func (s *Selector) Name() string {
	return s.current().Name()
}

// AnalyzeEntry delegates to the active provider
func (s *Selector) AnalyzeEntry(ctx context.Context, entry *EntryContext) (*models.EntryDecision, error) {
	return s.current().AnalyzeEntry(ctx, entry)
}

// GuardPosition delegates to the active provider
func (s *Selector) GuardPosition(ctx context.Context, guard *GuardContext) (*models.GuardVerdict, error) {
	return s.current().GuardPosition(ctx, guard)
}
