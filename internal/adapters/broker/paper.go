package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avetrov/goldpilot/pkg/models"
)

// contractSize is the units per lot used for paper P/L (100 oz for gold)
const contractSize = 100.0

// Paper is an in-memory broker for paper mode and tests. Orders fill at
// the injected quote. SL/TP levels are stored but never auto-triggered;
// closures happen through ClosePosition or the RemovePosition hook, which
// mirrors how the real terminal takes positions off the book.
type Paper struct {
	mu         sync.Mutex
	symbol     string
	quote      models.Quote
	balance    float64
	positions  map[int64]*models.Position
	history    []models.TradeRecord
	candles    map[string][]models.Candle
	nextTicket int64
	connected  bool
	marketOpen bool
	now        func() time.Time
}

// NewPaper creates a paper broker seeded with a starting balance
func NewPaper(symbol string, balance float64) *Paper {
	return &Paper{
		symbol:     symbol,
		balance:    balance,
		positions:  make(map[int64]*models.Position),
		candles:    make(map[string][]models.Candle),
		nextTicket: 100001,
		marketOpen: true,
		now:        time.Now,
	}
}

// SetQuote injects the current market price
func (p *Paper) SetQuote(bid, ask float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.quote = models.Quote{
		Symbol: p.symbol,
		Bid:    bid,
		Ask:    ask,
		Spread: ask - bid,
		Time:   p.now(),
	}
}

// SetCandles injects bars for a timeframe
func (p *Paper) SetCandles(timeframe string, candles []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles[timeframe] = candles
}

// SetMarketOpen toggles the market-closed gate
func (p *Paper) SetMarketOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marketOpen = open
}

// RemovePosition simulates the terminal closing a position (SL/TP hit).
// The realized profit is recorded as given.
func (p *Paper) RemovePosition(ticket int64, profit float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticket]
	if !ok {
		return
	}
	delete(p.positions, ticket)
	p.balance += profit
	p.history = append(p.history, models.TradeRecord{
		Ticket:   ticket,
		Symbol:   pos.Symbol,
		Side:     pos.Side,
		Volume:   pos.Volume,
		Price:    pos.CurrentPrice,
		Profit:   profit,
		ClosedAt: p.now(),
		Comment:  pos.Comment,
	})
}

// Connect marks the session established
func (p *Paper) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect marks the session closed
func (p *Paper) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// IsConnected reports session state
func (p *Paper) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Quote returns the injected market price
func (p *Paper) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.quote.Bid == 0 && p.quote.Ask == 0 {
		return nil, fmt.Errorf("no quote available for %s", symbol)
	}
	q := p.quote
	return &q, nil
}

// Candles returns injected bars for the timeframe
func (p *Paper) Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	bars := p.candles[timeframe]
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]models.Candle, len(bars))
	copy(out, bars)
	return out, nil
}

// IsMarketOpen reports the injected market state
func (p *Paper) IsMarketOpen(ctx context.Context, symbol string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return false, ErrNotConnected
	}
	return p.marketOpen, nil
}

// Account returns a snapshot with equity marked to the current quote
func (p *Paper) Account(ctx context.Context) (*models.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}

	floating := 0.0
	for _, pos := range p.positions {
		floating += p.unrealized(pos)
	}

	return &models.AccountSnapshot{
		Login:        1,
		Balance:      p.balance,
		Equity:       p.balance + floating,
		Profit:       floating,
		MarginFree:   p.balance,
		Leverage:     100,
		Currency:     "USD",
		Server:       "paper",
		TradeAllowed: true,
	}, nil
}

// Positions returns open positions ordered by ticket (oldest first)
func (p *Paper) Positions(ctx context.Context, symbol string) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}

	out := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		snapshot := *pos
		snapshot.Profit = p.unrealized(pos)
		snapshot.CurrentPrice = p.markPrice(pos.Side)
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// TradeHistory returns recorded closures from the last N days
func (p *Paper) TradeHistory(ctx context.Context, symbol string, days int) ([]models.TradeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}

	cutoff := p.now().AddDate(0, 0, -days)
	out := make([]models.TradeRecord, 0, len(p.history))
	for _, rec := range p.history {
		if rec.ClosedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PlaceMarketOrder fills immediately at the injected quote
func (p *Paper) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	if !p.marketOpen {
		return nil, fmt.Errorf("market closed for %s", req.Symbol)
	}
	if req.Volume <= 0 {
		return nil, fmt.Errorf("invalid volume: %v", req.Volume)
	}

	price := p.quote.Ask
	if req.Side == models.SideSell {
		price = p.quote.Bid
	}
	if price == 0 {
		return nil, fmt.Errorf("no quote available for %s", req.Symbol)
	}

	ticket := p.nextTicket
	p.nextTicket++

	p.positions[ticket] = &models.Position{
		Ticket:       ticket,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       req.Volume,
		OpenPrice:    price,
		CurrentPrice: price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OpenedAt:     p.now(),
		Comment:      req.Comment,
	}

	return &models.OrderResult{Ticket: ticket, Price: price, Volume: req.Volume}, nil
}

// ModifyPosition updates SL/TP levels
func (p *Paper) ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	pos, ok := p.positions[ticket]
	if !ok {
		return fmt.Errorf("position %d not found", ticket)
	}
	if sl != 0 {
		pos.StopLoss = sl
	}
	if tp != 0 {
		pos.TakeProfit = tp
	}
	return nil
}

// ClosePosition closes at the opposite side of the quote
func (p *Paper) ClosePosition(ctx context.Context, ticket int64) (*models.CloseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	pos, ok := p.positions[ticket]
	if !ok {
		return nil, fmt.Errorf("position %d not found", ticket)
	}

	price := p.markPrice(pos.Side)
	profit := p.unrealized(pos)

	delete(p.positions, ticket)
	p.balance += profit
	p.history = append(p.history, models.TradeRecord{
		Ticket:   ticket,
		Symbol:   pos.Symbol,
		Side:     pos.Side,
		Volume:   pos.Volume,
		Price:    price,
		Profit:   profit,
		ClosedAt: p.now(),
		Comment:  pos.Comment,
	})

	return &models.CloseResult{Ticket: ticket, Price: price, Profit: profit}, nil
}

// markPrice is the side a position would close at
func (p *Paper) markPrice(side models.Side) float64 {
	if side == models.SideBuy {
		return p.quote.Bid
	}
	return p.quote.Ask
}

func (p *Paper) unrealized(pos *models.Position) float64 {
	mark := p.markPrice(pos.Side)
	if mark == 0 {
		return 0
	}
	if pos.Side == models.SideBuy {
		return (mark - pos.OpenPrice) * pos.Volume * contractSize
	}
	return (pos.OpenPrice - mark) * pos.Volume * contractSize
}
