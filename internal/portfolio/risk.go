package portfolio

import (
	"fmt"
	"log"
	"sync"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// RiskLimits defines configurable risk management thresholds. A zero
// limit is not enforced.
type RiskLimits struct {
	MinConfidence       float64 `json:"min_confidence"`        // signals below this are not traded
	MaxPositionNotional float64 `json:"max_position_notional"` // quote value per symbol
	MaxOpenPositions    int     `json:"max_open_positions"`
	MaxDailyLoss        float64 `json:"max_daily_loss"`   // quote currency
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"` // 0-100
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MinConfidence:       0.6,
		MaxPositionNotional: 1000,
		MaxOpenPositions:    3,
		MaxDailyLoss:        200,
		MaxDrawdownPct:      10,
	}
}

// RiskStatus is a snapshot of the risk manager's equity tracking.
type RiskStatus struct {
	DailyPnL    float64    `json:"daily_pnl"`
	Equity      float64    `json:"equity"`
	PeakEquity  float64    `json:"peak_equity"`
	DrawdownPct float64    `json:"drawdown_pct"`
	Limits      RiskLimits `json:"limits"`
}

// RiskManager validates orders against risk limits and tracks equity.
type RiskManager struct {
	mu        sync.RWMutex
	limits    RiskLimits
	portfolio *Portfolio

	dailyPnL   float64
	equity     float64
	peakEquity float64
}

// NewRiskManager creates a RiskManager with the given limits, portfolio, and starting equity.
func NewRiskManager(limits RiskLimits, pf *Portfolio, initialEquity float64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		portfolio:  pf,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits { return rm.limits }

// CanTrade checks whether order, backed by a signal of the given
// confidence, may be placed. It returns false with a reason if not.
func (rm *RiskManager) CanTrade(order model.Order, confidence float64) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if confidence < rm.limits.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f below minimum %.2f", confidence, rm.limits.MinConfidence)
	}

	pos, open := rm.portfolio.Position(order.Symbol)

	if order.Side == model.SideSell {
		if !open {
			return false, "no position to sell"
		}
		// reducing exposure is always allowed
		return true, ""
	}

	if !open && rm.limits.MaxOpenPositions > 0 && rm.portfolio.OpenPositions() >= rm.limits.MaxOpenPositions {
		return false, "max open positions reached"
	}

	if rm.limits.MaxPositionNotional > 0 {
		after := pos.Qty*order.Price + order.Notional()
		if after > rm.limits.MaxPositionNotional {
			return false, fmt.Sprintf("position notional %.2f exceeds limit %.2f", after, rm.limits.MaxPositionNotional)
		}
	}

	if rm.limits.MaxDailyLoss > 0 && rm.dailyPnL <= -rm.limits.MaxDailyLoss {
		return false, "max daily loss reached"
	}

	if rm.limits.MaxDrawdownPct > 0 && rm.drawdown() > rm.limits.MaxDrawdownPct {
		return false, "max drawdown exceeded"
	}

	return true, ""
}

// RecordPnL updates daily P&L and equity tracking.
func (rm *RiskManager) RecordPnL(pnl float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}

	log.Printf("[risk] daily P&L: %.2f, equity: %.2f, peak: %.2f", rm.dailyPnL, rm.equity, rm.peakEquity)
}

// ResetDaily resets the daily P&L counter (call at UTC midnight).
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyPnL = 0
}

// GetStatus returns current risk status.
func (rm *RiskManager) GetStatus() RiskStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return RiskStatus{
		DailyPnL:    rm.dailyPnL,
		Equity:      rm.equity,
		PeakEquity:  rm.peakEquity,
		DrawdownPct: rm.drawdown(),
		Limits:      rm.limits,
	}
}

func (rm *RiskManager) drawdown() float64 {
	if rm.peakEquity <= 0 {
		return 0
	}
	return (rm.peakEquity - rm.equity) / rm.peakEquity * 100
}
