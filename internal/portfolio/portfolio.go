// Package portfolio tracks positions, P&L, and portfolio-level risk.
//
// It keeps a long-only spot view of every symbol the trader has filled,
// marks positions to the latest price and gates new orders through the
// RiskManager.
package portfolio

import (
	"sort"
	"sync"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// Position represents a single symbol position.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	AvgPrice  float64 `json:"avg_price"`
	LastPrice float64 `json:"last_price"`
}

// UnrealizedPnL returns the mark-to-market P&L of the open quantity.
func (p Position) UnrealizedPnL() float64 {
	if p.LastPrice == 0 {
		return 0
	}
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Notional returns the position value at the last known price.
func (p Position) Notional() float64 {
	price := p.LastPrice
	if price == 0 {
		price = p.AvgPrice
	}
	return p.Qty * price
}

// Portfolio tracks all open positions and realized P&L.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*Position // key = symbol
	trades    []Trade
	realized  float64
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
		trades:    make([]Trade, 0, 128),
	}
}

// ApplyFill books a fill and returns the P&L it realized. Buys extend the
// position at a weighted average price; sells close at most the open
// quantity.
func (pf *Portfolio) ApplyFill(t Trade) float64 {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pf.trades = append(pf.trades, t)
	pos, ok := pf.positions[t.Symbol]
	if !ok {
		pos = &Position{Symbol: t.Symbol}
	}
	pos.LastPrice = t.Price

	var realized float64
	switch t.Side {
	case model.SideBuy:
		cost := pos.AvgPrice*pos.Qty + t.Price*t.Qty
		pos.Qty += t.Qty
		if pos.Qty > 0 {
			pos.AvgPrice = cost / pos.Qty
		}
	case model.SideSell:
		qty := min(t.Qty, pos.Qty)
		realized = (t.Price - pos.AvgPrice) * qty
		pos.Qty -= qty
		pf.realized += realized
	}

	if pos.Qty <= 0 {
		delete(pf.positions, t.Symbol)
	} else {
		pf.positions[t.Symbol] = pos
	}
	return realized
}

// UpdatePrice marks the symbol's position to price.
func (pf *Portfolio) UpdatePrice(symbol string, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[symbol]; ok {
		pos.LastPrice = price
	}
}

// Position returns the open position for symbol.
func (pf *Portfolio) Position(symbol string) (Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	pos, ok := pf.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// GetPositions returns a snapshot of all positions sorted by symbol.
func (pf *Portfolio) GetPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// OpenPositions returns the number of symbols with a non-zero position.
func (pf *Portfolio) OpenPositions() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.positions)
}

// TotalUnrealizedPnL returns the total unrealized P&L across all positions.
func (pf *Portfolio) TotalUnrealizedPnL() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		total += p.UnrealizedPnL()
	}
	return total
}
