package portfolio

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func fill(symbol string, side model.Side, qty, price float64) Trade {
	return Trade{Symbol: symbol, Side: side, Qty: qty, Price: price, Timestamp: time.Now()}
}

// ────────────────────────────────────────────────────────────
// Positions and P&L
// ────────────────────────────────────────────────────────────

func TestApplyFill_WeightedAverage(t *testing.T) {
	pf := New()
	pf.ApplyFill(fill("BTCUSDT", model.SideBuy, 1, 100))
	pf.ApplyFill(fill("BTCUSDT", model.SideBuy, 3, 200))

	pos, ok := pf.Position("BTCUSDT")
	if !ok {
		t.Fatal("position missing")
	}
	assertClose(t, "qty", pos.Qty, 4)
	assertClose(t, "avg", pos.AvgPrice, 175)
}

func TestApplyFill_RealizedPnL(t *testing.T) {
	pf := New()
	pf.ApplyFill(fill("ETHUSDT", model.SideBuy, 2, 100))

	r := pf.ApplyFill(fill("ETHUSDT", model.SideSell, 1, 130))
	assertClose(t, "partial realized", r, 30)

	// oversell closes only what is held
	r = pf.ApplyFill(fill("ETHUSDT", model.SideSell, 5, 90))
	assertClose(t, "close realized", r, -10)

	if _, ok := pf.Position("ETHUSDT"); ok {
		t.Error("closed position should be removed")
	}
	assertClose(t, "total realized", pf.RealizedPnL(), 20)
	if pf.OpenPositions() != 0 || len(pf.GetTrades()) != 3 {
		t.Errorf("open=%d trades=%d", pf.OpenPositions(), len(pf.GetTrades()))
	}
}

func TestSellWithoutPosition(t *testing.T) {
	pf := New()
	if r := pf.ApplyFill(fill("XRPUSDT", model.SideSell, 10, 1)); r != 0 {
		t.Errorf("realized = %v", r)
	}
	if pf.OpenPositions() != 0 {
		t.Error("selling flat must not open a short")
	}
}

func TestUnrealizedAndSummary(t *testing.T) {
	pf := New()
	pf.ApplyFill(fill("BTCUSDT", model.SideBuy, 0.5, 40000))
	pf.ApplyFill(fill("ETHUSDT", model.SideBuy, 2, 2000))
	pf.UpdatePrice("BTCUSDT", 42000)
	pf.UpdatePrice("ETHUSDT", 1900)
	pf.UpdatePrice("DOGEUSDT", 1) // no position, ignored

	assertClose(t, "unrealized", pf.TotalUnrealizedPnL(), 1000-200)

	s := pf.GetSummary()
	if s.OpenPositions != 2 || s.TotalTrades != 2 {
		t.Errorf("summary = %+v", s)
	}
	assertClose(t, "total", s.TotalPnL, 800)

	ps := pf.GetPositions()
	if len(ps) != 2 || ps[0].Symbol != "BTCUSDT" {
		t.Errorf("positions = %+v", ps)
	}
	assertClose(t, "notional", ps[0].Notional(), 21000)
}

// ────────────────────────────────────────────────────────────
// Risk
// ────────────────────────────────────────────────────────────

func order(symbol string, side model.Side, qty, price float64) model.Order {
	return model.Order{Symbol: symbol, Side: side, Quantity: qty, Price: price}
}

func TestCanTrade(t *testing.T) {
	limits := RiskLimits{MinConfidence: 0.6, MaxPositionNotional: 1000, MaxOpenPositions: 2, MaxDailyLoss: 100, MaxDrawdownPct: 5}
	pf := New()
	pf.ApplyFill(fill("BTCUSDT", model.SideBuy, 0.01, 40000)) // 400 notional
	pf.ApplyFill(fill("ETHUSDT", model.SideBuy, 0.1, 2000))   // 200 notional
	rm := NewRiskManager(limits, pf, 10000)

	cases := []struct {
		name   string
		order  model.Order
		conf   float64
		ok     bool
		reason string
	}{
		{"low confidence", order("BTCUSDT", model.SideBuy, 0.001, 40000), 0.5, false, "confidence"},
		{"add within notional", order("BTCUSDT", model.SideBuy, 0.01, 40000), 0.8, true, ""},
		{"add beyond notional", order("BTCUSDT", model.SideBuy, 0.02, 40000), 0.8, false, "notional"},
		{"third symbol", order("SOLUSDT", model.SideBuy, 1, 100), 0.8, false, "max open positions"},
		{"sell held", order("ETHUSDT", model.SideSell, 0.1, 2000), 0.8, true, ""},
		{"sell flat", order("SOLUSDT", model.SideSell, 1, 100), 0.8, false, "no position"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := rm.CanTrade(tc.order, tc.conf)
			if ok != tc.ok || !strings.Contains(reason, tc.reason) {
				t.Errorf("got (%v, %q), want (%v, ~%q)", ok, reason, tc.ok, tc.reason)
			}
		})
	}
}

func TestCanTrade_DailyLossAndDrawdown(t *testing.T) {
	pf := New()
	rm := NewRiskManager(RiskLimits{MaxDailyLoss: 100}, pf, 1000)
	buy := order("BTCUSDT", model.SideBuy, 0.001, 40000)

	rm.RecordPnL(-100)
	if ok, reason := rm.CanTrade(buy, 1); ok || reason != "max daily loss reached" {
		t.Errorf("daily loss: got (%v, %q)", ok, reason)
	}
	rm.ResetDaily()
	if ok, _ := rm.CanTrade(buy, 1); !ok {
		t.Error("reset should lift the daily loss block")
	}

	rm = NewRiskManager(RiskLimits{MaxDrawdownPct: 5}, pf, 1000)
	rm.RecordPnL(200)  // peak 1200
	rm.RecordPnL(-100) // 8.3% below peak
	if ok, reason := rm.CanTrade(buy, 1); ok || reason != "max drawdown exceeded" {
		t.Errorf("drawdown: got (%v, %q)", ok, reason)
	}

	st := rm.GetStatus()
	assertClose(t, "equity", st.Equity, 1100)
	assertClose(t, "peak", st.PeakEquity, 1200)
	assertClose(t, "drawdown", st.DrawdownPct, 100.0/1200*100)
}
