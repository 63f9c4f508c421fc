package metrics

import "time"

// TickMetric is one engine tick snapshot archived to ClickHouse. Values
// follow the engine_ticks column order.
type TickMetric struct {
	Timestamp     time.Time
	Symbol        string
	Bid           float64
	Ask           float64
	Spread        float64
	OpenPositions int
	Balance       float64
	Equity        float64
}

func (m *TickMetric) TableName() string {
	return "engine_ticks"
}

func (m *TickMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.Symbol,
		m.Bid,
		m.Ask,
		m.Spread,
		m.OpenPositions,
		m.Balance,
		m.Equity,
	}
}
