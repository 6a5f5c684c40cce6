package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

type fakeSource struct {
	mu       sync.Mutex
	candles  []model.Candle
	err      error
	interval string
	limit    int
	calls    int
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.interval, f.limit = interval, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func candles(closes []float64) []model.Candle {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Symbol: "BTCUSDT", Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

// rebound falls hard then drifts lower, so every default strategy buys.
func rebound() []float64 {
	var out []float64
	for i := 0; i < 40; i++ {
		out = append(out, 200-3*float64(i))
	}
	for i := 1; i <= 30; i++ {
		out = append(out, 83-0.1*float64(i))
	}
	return out
}

func newManager() *strategy.Manager {
	return strategy.NewManager(strategy.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// ────────────────────────────────────────────────────────────
// GenerateSignal
// ────────────────────────────────────────────────────────────

func TestGenerateSignal_DemoMode(t *testing.T) {
	a := New(newManager(), nil)
	out := a.GenerateSignal(context.Background(), "BTCUSDT", "")
	if out.Signal != "buy" || out.Confidence != 0.8 {
		t.Fatalf("demo output = %s/%.2f", out.Signal, out.Confidence)
	}
	if out.Metadata["mode"] != ModeDemo {
		t.Errorf("mode = %v", out.Metadata["mode"])
	}
}

func TestGenerateSignal_FetchFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection reset")}
	out := New(newManager(), src).GenerateSignal(context.Background(), "BTCUSDT", "")

	if out.Signal != "hold" || out.Confidence != 0.5 {
		t.Fatalf("got %s/%.2f, want hold/0.5", out.Signal, out.Confidence)
	}
	if reason, _ := out.Metadata["reason"].(string); !strings.Contains(reason, "connection reset") {
		t.Errorf("reason = %q", reason)
	}
}

func TestGenerateSignal_ShortWindow(t *testing.T) {
	src := &fakeSource{candles: candles(rebound()[:10])}
	out := New(newManager(), src).GenerateSignal(context.Background(), "BTCUSDT", "")
	if out.Signal != "hold" || out.Confidence != 0.5 || out.Metadata["mode"] != ModeDegraded {
		t.Errorf("got %s/%.2f %v", out.Signal, out.Confidence, out.Metadata)
	}
}

func TestGenerateSignal_Live(t *testing.T) {
	src := &fakeSource{candles: candles(rebound())}
	a := New(newManager(), src)
	out := a.GenerateSignal(context.Background(), "BTCUSDT", "")

	if src.interval != "1h" || src.limit != 50 {
		t.Errorf("fetched %s x%d, want 1h x50", src.interval, src.limit)
	}
	if out.Strategy != "combined_default" || out.Signal != "buy" {
		t.Fatalf("got %s from %s", out.Signal, out.Strategy)
	}
	if out.Confidence < 0.9 || out.PriceTarget == nil {
		t.Errorf("expected confident buy with levels, got %.2f %v", out.Confidence, out.PriceTarget)
	}
	if out.Type() != strategy.SignalBuy || out.Price() < 79 || out.Price() > 81 {
		t.Errorf("Type/Price helpers: %s %.2f", out.Type(), out.Price())
	}
	if out.Metadata["mode"] != ModeLive {
		t.Errorf("mode = %v", out.Metadata["mode"])
	}

	hist, _ := a.Manager().History("combined_default")
	if len(hist) != 1 {
		t.Errorf("expected one performance record, got %d", len(hist))
	}
}

func TestGenerateSignal_Override(t *testing.T) {
	src := &fakeSource{candles: candles(rebound())}
	a := New(newManager(), src)

	out := a.GenerateSignal(context.Background(), "BTCUSDT", "rsi_default")
	if out.Strategy != "rsi_default" || out.Signal != "buy" {
		t.Errorf("override: got %s from %s", out.Signal, out.Strategy)
	}

	out = a.GenerateSignal(context.Background(), "BTCUSDT", "nope")
	if out.Signal != "hold" || out.Confidence != 0 {
		t.Errorf("unknown strategy: got %s/%.2f", out.Signal, out.Confidence)
	}
	if _, ok := out.Metadata["error"]; !ok {
		t.Error("unknown strategy should be reported in metadata")
	}
}

func TestSetStrategy(t *testing.T) {
	a := New(newManager(), nil, WithStrategy("macd_default"))
	if a.CurrentStrategy() != "macd_default" {
		t.Fatalf("initial = %s", a.CurrentStrategy())
	}
	if err := a.SetStrategy("missing"); !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
	if err := a.SetStrategy("rsi_conservative"); err != nil {
		t.Fatal(err)
	}
	if a.CurrentStrategy() != "rsi_conservative" {
		t.Errorf("current = %s", a.CurrentStrategy())
	}
}

func TestOptions(t *testing.T) {
	src := &fakeSource{candles: candles(rebound())}
	a := New(newManager(), src, WithInterval("15m"), WithLimit(200), WithMinCandles(100))
	out := a.GenerateSignal(context.Background(), "ETHUSDT", "")
	if src.interval != "15m" || src.limit != 200 {
		t.Errorf("fetched %s x%d", src.interval, src.limit)
	}
	if out.Signal != "hold" || out.Confidence != 0.5 {
		t.Errorf("70 candles < 100 minimum should degrade, got %s/%.2f", out.Signal, out.Confidence)
	}
}

// ────────────────────────────────────────────────────────────
// Compare
// ────────────────────────────────────────────────────────────

func TestCompare(t *testing.T) {
	src := &fakeSource{candles: candles(rebound())}
	c, err := New(newManager(), src).Compare(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if c.Consensus.Signal != strategy.SignalBuy || c.Consensus.Votes.Total() != 5 {
		t.Errorf("consensus = %+v", c.Consensus)
	}

	if _, err := New(newManager(), &fakeSource{err: errors.New("down")}).Compare(context.Background(), "X"); err == nil {
		t.Error("expected fetch error")
	}
	_, err = New(newManager(), &fakeSource{candles: candles(rebound()[:5])}).Compare(context.Background(), "X")
	if !errors.Is(err, ErrNotEnoughCandles) {
		t.Errorf("expected ErrNotEnoughCandles, got %v", err)
	}
	if _, err := New(newManager(), nil).Compare(context.Background(), "X"); err == nil {
		t.Error("demo agent cannot compare")
	}
}

func TestSignalAndCompare_OneRecordPerStrategy(t *testing.T) {
	src := &fakeSource{candles: candles(rebound())}
	m := newManager()
	a := New(m, src)

	out, cmp := a.SignalAndCompare(context.Background(), "BTCUSDT")
	if src.calls != 1 {
		t.Errorf("fetched %d times, want 1", src.calls)
	}
	if out.Strategy != DefaultStrategy || out.Signal != "buy" || out.Metadata["mode"] != ModeLive {
		t.Errorf("output = %+v", out)
	}
	if cmp == nil || cmp.Consensus.Votes.Total() != 5 {
		t.Fatalf("comparison = %+v", cmp)
	}
	if out.Confidence != cmp.Results[DefaultStrategy].Confidence {
		t.Errorf("output confidence %v differs from comparison %v", out.Confidence, cmp.Results[DefaultStrategy].Confidence)
	}
	for _, name := range m.Names() {
		if h, _ := m.History(name); len(h) != 1 {
			t.Errorf("%s has %d records, want 1", name, len(h))
		}
	}
}

func TestSignalAndCompare_Degraded(t *testing.T) {
	out, cmp := New(newManager(), &fakeSource{err: errors.New("down")}).SignalAndCompare(context.Background(), "X")
	if cmp != nil || out.Metadata["mode"] != ModeDegraded {
		t.Errorf("fetch failure: out=%+v cmp=%v", out, cmp)
	}

	out, cmp = New(newManager(), nil).SignalAndCompare(context.Background(), "X")
	if cmp != nil || out.Metadata["mode"] != ModeDemo {
		t.Errorf("demo: out=%+v cmp=%v", out, cmp)
	}

	src := &fakeSource{candles: candles(rebound())}
	m := newManager()
	a := New(m, src)
	if err := a.SetStrategy("rsi_default"); err != nil {
		t.Fatal(err)
	}
	m.Remove("rsi_default")
	out, cmp = a.SignalAndCompare(context.Background(), "BTCUSDT")
	if cmp == nil || out.Signal != "hold" || !strings.Contains(out.Metadata["error"].(string), "rsi_default") {
		t.Errorf("removed current strategy: out=%+v", out)
	}
}
