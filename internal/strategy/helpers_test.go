package strategy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func candlesFrom(closes []float64) []model.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Symbol:    "BTCUSDT",
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 10,
		}
	}
	return out
}

func linear(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// reboundSeries falls steeply for 40 candles and then drifts down gently,
// which leaves RSI pinned at 0 while the MACD histogram turns positive.
func reboundSeries() []float64 {
	out := linear(200, -3, 40)
	last := out[len(out)-1]
	for i := 1; i <= 30; i++ {
		out = append(out, last-0.1*float64(i))
	}
	return out
}

func randomWalk(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + (rng.Float64()-0.5)*0.06
		out[i] = p
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func mustRSI(t *testing.T, p Params) *RSIStrategy {
	t.Helper()
	s, err := NewRSIStrategy(p)
	if err != nil {
		t.Fatalf("NewRSIStrategy(%v): %v", p, err)
	}
	return s
}

func mustMACD(t *testing.T, p Params) *MACDStrategy {
	t.Helper()
	s, err := NewMACDStrategy(p)
	if err != nil {
		t.Fatalf("NewMACDStrategy(%v): %v", p, err)
	}
	return s
}

func mustCombined(t *testing.T, p Params) *CombinedStrategy {
	t.Helper()
	s, err := NewCombinedStrategy(p)
	if err != nil {
		t.Fatalf("NewCombinedStrategy(%v): %v", p, err)
	}
	return s
}

func allVariants(t *testing.T) []Strategy {
	t.Helper()
	return []Strategy{mustRSI(t, nil), mustMACD(t, nil), mustCombined(t, nil)}
}
