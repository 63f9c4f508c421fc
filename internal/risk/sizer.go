package risk

import "math"

// DynamicLot scales the base lot with account growth: +30% for every time
// the balance has doubled since the initial deposit. The result is rounded
// to standard 2-decimal lot precision. An unknown initial balance or a
// balance below the initial keeps the base lot.
func DynamicLot(baseLot, initialBalance, currentBalance float64) float64 {
	if initialBalance <= 0 || currentBalance < initialBalance {
		return baseLot
	}

	doublings := math.Floor(math.Log2(currentBalance / initialBalance))
	if doublings <= 0 {
		return baseLot
	}

	lot := baseLot * math.Pow(1.3, doublings)
	return math.Round(lot*100) / 100
}
