package portfolio

import (
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// Trade represents a completed fill for P&L calculation.
type Trade struct {
	Symbol    string     `json:"symbol"`
	Side      model.Side `json:"side"`
	Qty       float64    `json:"qty"`
	Price     float64    `json:"price"`
	Strategy  string     `json:"strategy,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// PnLSummary is a point-in-time P&L view.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalTrades   int     `json:"total_trades"`
	OpenPositions int     `json:"open_positions"`
}

// RealizedPnL returns the P&L of all closed quantity.
func (pf *Portfolio) RealizedPnL() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.realized
}

// GetTrades returns a snapshot of all booked trades.
func (pf *Portfolio) GetTrades() []Trade {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	cp := make([]Trade, len(pf.trades))
	copy(cp, pf.trades)
	return cp
}

// GetSummary returns the current P&L summary.
func (pf *Portfolio) GetSummary() PnLSummary {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	var unrealized float64
	for _, p := range pf.positions {
		unrealized += p.UnrealizedPnL()
	}
	return PnLSummary{
		RealizedPnL:   pf.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      pf.realized + unrealized,
		TotalTrades:   len(pf.trades),
		OpenPositions: len(pf.positions),
	}
}
