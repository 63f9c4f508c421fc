package engine

import (
	"sort"

	"github.com/avetrov/goldpilot/pkg/models"
)

// Closure describes a position that left the book between two ticks. The
// broker does not push close notifications, so the fill price is unknown;
// the last observed snapshot is the best available record.
type Closure struct {
	Ticket    int64
	Symbol    string
	Side      models.Side
	Volume    float64
	Price     float64
	Profit    float64
	Comment   string
	CloseType models.CloseType
}

// DetectClosed diffs the previous position map against the current book.
// Every ticket that disappeared is reported as a closure, classified by the
// sign of its last known profit: a non-negative profit reads as a take
// profit, a negative one as a stop loss. The returned map replaces the
// previous one and is always built from the current book.
func DetectClosed(prev map[int64]models.Position, current []models.Position) ([]Closure, map[int64]models.Position) {
	next := make(map[int64]models.Position, len(current))
	for _, p := range current {
		next[p.Ticket] = p
	}

	var closures []Closure
	for ticket, p := range prev {
		if _, open := next[ticket]; open {
			continue
		}

		closeType := models.CloseTakeProfit
		if p.Profit < 0 {
			closeType = models.CloseStopLoss
		}

		closures = append(closures, Closure{
			Ticket:    ticket,
			Symbol:    p.Symbol,
			Side:      p.Side,
			Volume:    p.Volume,
			Price:     p.CurrentPrice,
			Profit:    p.Profit,
			Comment:   p.Comment,
			CloseType: closeType,
		})
	}

	sort.Slice(closures, func(i, j int) bool { return closures[i].Ticket < closures[j].Ticket })

	return closures, next
}
