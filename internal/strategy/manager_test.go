package strategy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// ────────────────────────────────────────────────────────────
// Test doubles
// ────────────────────────────────────────────────────────────

type stubStrategy struct {
	base
	sig    SignalType
	conf   float64
	panics bool
}

func newStub(name string, sig SignalType, conf float64) *stubStrategy {
	return &stubStrategy{
		base: base{name: name, kind: "stub", schema: Schema{}, params: Params{}},
		sig:  sig,
		conf: conf,
	}
}

func (s *stubStrategy) Analyze(candles []model.Candle, symbol string) Result {
	if s.panics {
		panic("boom")
	}
	return newResult(s.sig, s.conf, nil, map[string]any{"symbol": symbol})
}

func (s *stubStrategy) RiskMetrics(candles []model.Candle) RiskMetrics {
	return baseRiskMetrics(candles)
}

type recordingObserver struct {
	mu   sync.Mutex
	recs []PerformanceRecord
}

func (o *recordingObserver) OnAnalysis(rec PerformanceRecord, took time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recs = append(o.recs, rec)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(opts ...Option) *Manager {
	return NewManager(append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// ────────────────────────────────────────────────────────────
// Registry
// ────────────────────────────────────────────────────────────

func TestManager_SeedsDefaults(t *testing.T) {
	m := newTestManager()
	want := []string{"combined_default", "macd_default", "rsi_aggressive", "rsi_conservative", "rsi_default"}
	if got := m.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}

	s, ok := m.Get("rsi_aggressive")
	if !ok {
		t.Fatal("rsi_aggressive missing")
	}
	if got := s.Params().Float("oversold"); got != 35 {
		t.Errorf("aggressive oversold = %v, want 35", got)
	}
	if s.Type() != TypeRSI {
		t.Errorf("type = %q", s.Type())
	}

	if n := newTestManager(WithoutDefaults()).Len(); n != 0 {
		t.Errorf("WithoutDefaults: expected empty registry, got %d", n)
	}
}

func TestManager_RegisterErrors(t *testing.T) {
	m := newTestManager(WithoutDefaults())
	if err := m.Register("", newStub("x", SignalHold, 0)); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name: got %v", err)
	}
	if err := m.Register("x", nil); !errors.Is(err, ErrNilStrategy) {
		t.Errorf("nil strategy: got %v", err)
	}
}

func TestManager_CreateErrors(t *testing.T) {
	m := newTestManager(WithoutDefaults())

	err := m.Create("bollinger", "bb", nil)
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type: got %v", err)
	}
	err = m.Create(TypeRSI, "bad", Params{"period": 500})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("invalid params: got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("failed creations must not register, got %v", m.Names())
	}

	if err := m.Create(TypeMACD, "fast_macd", Params{"fast_period": 8}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("fast_macd"); !ok {
		t.Error("created strategy not registered")
	}
}

func TestManager_RemoveAndClear(t *testing.T) {
	m := newTestManager()
	candles := candlesFrom(reboundSeries())
	m.AnalyzeWith("rsi_default", candles, "BTCUSDT")

	if !m.Remove("rsi_default") {
		t.Fatal("Remove returned false for a registered name")
	}
	if m.Remove("rsi_default") {
		t.Error("second Remove should return false")
	}
	if _, ok := m.History("rsi_default"); ok {
		t.Error("history should be dropped with the strategy")
	}

	m.Create(TypeRSI, "rsi_default", nil)
	if h, _ := m.History("rsi_default"); len(h) != 0 {
		t.Errorf("re-created strategy should start with an empty log, got %d", len(h))
	}

	m.Clear()
	if m.Len() != 0 || len(m.Summaries()) != 0 {
		t.Error("Clear should empty registry and logs")
	}
}

// ────────────────────────────────────────────────────────────
// Analysis
// ────────────────────────────────────────────────────────────

func TestManager_AnalyzeWithUnknown(t *testing.T) {
	m := newTestManager()
	if _, ok := m.AnalyzeWith("nope", candlesFrom(reboundSeries()), "BTCUSDT"); ok {
		t.Fatal("expected not-found for unknown strategy")
	}
}

func TestManager_AnalyzeWithRecords(t *testing.T) {
	m := newTestManager()
	res, ok := m.AnalyzeWith("rsi_default", candlesFrom(reboundSeries()), "BTCUSDT")
	if !ok || res.Signal != SignalBuy {
		t.Fatalf("got %v/%s", ok, res.Signal)
	}

	hist, ok := m.History("rsi_default")
	if !ok || len(hist) != 1 {
		t.Fatalf("expected 1 record, got %d", len(hist))
	}
	rec := hist[0]
	if rec.Symbol != "BTCUSDT" || rec.Signal != SignalBuy || rec.CandleCount != 70 {
		t.Errorf("unexpected record %+v", rec)
	}
	assertClose(t, "price", rec.Price, 80, 1e-9)
}

func TestManager_MalformedCandles(t *testing.T) {
	m := newTestManager()
	closes := reboundSeries()
	closes[10] = -1

	res, ok := m.AnalyzeWith("macd_default", candlesFrom(closes), "BTCUSDT")
	if !ok {
		t.Fatal("strategy should be found")
	}
	if res.Signal != SignalHold || res.Confidence != 0 || !res.HasError() {
		t.Errorf("expected HOLD/0 with error, got %s/%.2f", res.Signal, res.Confidence)
	}
	if got := m.AnalyzeAll(candlesFrom(closes), "BTCUSDT"); len(got) != 0 {
		t.Errorf("AnalyzeAll should skip every strategy on malformed input, got %d", len(got))
	}
}

func TestManager_PanicIsContained(t *testing.T) {
	m := newTestManager()
	bad := newStub("bad", SignalBuy, 1)
	bad.panics = true
	m.Register("bad", bad)
	candles := candlesFrom(reboundSeries())

	res, ok := m.AnalyzeWith("bad", candles, "BTCUSDT")
	if !ok || res.Signal != SignalHold || !res.HasError() {
		t.Errorf("panic should surface as HOLD with error, got %s %v", res.Signal, res.Metadata)
	}

	all := m.AnalyzeAll(candles, "BTCUSDT")
	if _, present := all["bad"]; present {
		t.Error("panicking strategy should be left out of AnalyzeAll")
	}
	if len(all) != 5 {
		t.Errorf("expected the 5 defaults, got %d", len(all))
	}
}

// ────────────────────────────────────────────────────────────
// Performance log
// ────────────────────────────────────────────────────────────

func TestManager_HistoryCap(t *testing.T) {
	m := newTestManager()
	candles := candlesFrom(reboundSeries())
	for i := 0; i < 1500; i++ {
		m.AnalyzeWith("rsi_default", candles, fmt.Sprintf("S%d", i))
	}

	hist, _ := m.History("rsi_default")
	if len(hist) != DefaultHistoryLimit {
		t.Fatalf("history len = %d, want %d", len(hist), DefaultHistoryLimit)
	}
	if hist[0].Symbol != "S500" || hist[len(hist)-1].Symbol != "S1499" {
		t.Errorf("expected S500..S1499, got %s..%s", hist[0].Symbol, hist[len(hist)-1].Symbol)
	}

	sum, _ := m.Summary("rsi_default")
	if sum.TotalSignals != 1000 || sum.Evicted != 500 {
		t.Errorf("summary total=%d evicted=%d", sum.TotalSignals, sum.Evicted)
	}
}

func TestManager_HistoryLimitOption(t *testing.T) {
	m := newTestManager(WithHistoryLimit(3))
	candles := candlesFrom(reboundSeries())
	for i := 0; i < 5; i++ {
		m.AnalyzeWith("rsi_default", candles, fmt.Sprintf("S%d", i))
	}
	hist, _ := m.History("rsi_default")
	if len(hist) != 3 || hist[0].Symbol != "S2" {
		t.Errorf("expected S2..S4, got %d records starting %s", len(hist), hist[0].Symbol)
	}
}

func TestManager_ConcurrentAnalysis(t *testing.T) {
	m := newTestManager()
	candles := candlesFrom(reboundSeries())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				m.AnalyzeWith("combined_default", candles, "BTCUSDT")
			}
		}()
	}
	wg.Wait()

	hist, _ := m.History("combined_default")
	if len(hist) != 400 {
		t.Errorf("expected 400 records, got %d", len(hist))
	}
}

func TestManager_Summary(t *testing.T) {
	m := newTestManager(WithoutDefaults())
	candles := candlesFrom(linear(100, 1, 5))

	// replacing an instance keeps the name's log
	for _, s := range []*stubStrategy{
		newStub("x", SignalBuy, 0.8),
		newStub("x", SignalSell, 0.4),
		newStub("x", SignalHold, 0.6),
	} {
		m.Register("x", s)
		m.AnalyzeWith("x", candles, "BTCUSDT")
	}

	sum, ok := m.Summary("x")
	if !ok {
		t.Fatal("summary missing")
	}
	if sum.TotalSignals != 3 || sum.SignalCounts != (Votes{Buy: 1, Sell: 1, Hold: 1}) {
		t.Errorf("counts: %+v", sum)
	}
	assertClose(t, "avg", sum.AverageConfidence, 0.6, 1e-9)
	assertClose(t, "min", sum.MinConfidence, 0.4, 1e-9)
	assertClose(t, "max", sum.MaxConfidence, 0.8, 1e-9)
	if sum.LastSignal != SignalHold {
		t.Errorf("last signal = %s", sum.LastSignal)
	}

	m.Register("y", newStub("y", SignalBuy, 1))
	empty, _ := m.Summary("y")
	if empty.TotalSignals != 0 || empty.AverageConfidence != 0 {
		t.Errorf("empty summary: %+v", empty)
	}
	if len(m.Summaries()) != 2 {
		t.Errorf("expected 2 summaries")
	}
	if _, ok := m.Summary("z"); ok {
		t.Error("unknown summary should report false")
	}
}

func TestManager_Observer(t *testing.T) {
	obs := &recordingObserver{}
	m := newTestManager(WithObserver(obs))
	m.AnalyzeAll(candlesFrom(reboundSeries()), "ETHUSDT")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.recs) != 5 {
		t.Fatalf("observer saw %d records, want 5", len(obs.recs))
	}
	for _, r := range obs.recs {
		if r.Symbol != "ETHUSDT" {
			t.Errorf("record symbol %q", r.Symbol)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Comparison
// ────────────────────────────────────────────────────────────

func TestManager_CompareConsensus(t *testing.T) {
	m := newTestManager()
	c := m.Compare(candlesFrom(reboundSeries()), "BTCUSDT")

	if c.Consensus.Signal != SignalBuy {
		t.Fatalf("consensus = %s, want BUY (%s)", c.Consensus.Signal, c.Recommendation)
	}
	assertClose(t, "strength", c.Consensus.Strength, 1, 1e-9)
	if c.Consensus.Votes != (Votes{Buy: 5}) {
		t.Errorf("votes = %+v", c.Consensus.Votes)
	}
	if !strings.HasPrefix(c.Recommendation, "Strong BUY consensus: 5 of 5") {
		t.Errorf("recommendation = %q", c.Recommendation)
	}
	if c.Best == nil || c.Best.Name != "combined_default" {
		t.Errorf("best = %+v, want combined_default", c.Best)
	}
	if len(c.Results) != 5 {
		t.Errorf("results = %d", len(c.Results))
	}
}

func TestCompareResults_TieIsHold(t *testing.T) {
	c := compareResults("BTCUSDT", map[string]Result{
		"a": {Signal: SignalBuy, Confidence: 0.7},
		"b": {Signal: SignalSell, Confidence: 0.9},
	})
	if c.Consensus.Signal != SignalHold || !c.Consensus.Tied {
		t.Errorf("tie should resolve to HOLD, got %s tied=%v", c.Consensus.Signal, c.Consensus.Tied)
	}
	assertClose(t, "tied share", c.Consensus.Strength, 0.5, 1e-9)
	assertClose(t, "avg", c.AverageConfidence, 0.8, 1e-9)
	if !strings.HasPrefix(c.Recommendation, "Mixed signals; best strategy b suggests SELL") {
		t.Errorf("recommendation = %q", c.Recommendation)
	}
}

func TestCompareResults_TieIncludingHold(t *testing.T) {
	c := compareResults("BTCUSDT", map[string]Result{
		"a": {Signal: SignalBuy, Confidence: 0.6},
		"b": {Signal: SignalBuy, Confidence: 0.6},
		"c": {Signal: SignalHold, Confidence: 0.5},
		"d": {Signal: SignalHold, Confidence: 0.5},
		"e": {Signal: SignalSell, Confidence: 0.4},
	})
	if c.Consensus.Signal != SignalHold || !c.Consensus.Tied {
		t.Fatalf("consensus = %+v", c.Consensus)
	}
	assertClose(t, "tied share", c.Consensus.Strength, 0.4, 1e-9)

	majority := compareResults("BTCUSDT", map[string]Result{
		"a": {Signal: SignalBuy, Confidence: 0.6},
		"b": {Signal: SignalHold, Confidence: 0.5},
		"c": {Signal: SignalHold, Confidence: 0.5},
	})
	if majority.Consensus.Tied || majority.Consensus.Signal != SignalHold {
		t.Errorf("majority HOLD is not a tie: %+v", majority.Consensus)
	}
}

func TestCompareResults_Moderate(t *testing.T) {
	c := compareResults("X", map[string]Result{
		"a": {Signal: SignalSell, Confidence: 0.5},
		"b": {Signal: SignalSell, Confidence: 0.5},
		"c": {Signal: SignalHold, Confidence: 0.9},
	})
	if c.Consensus.Signal != SignalSell || !strings.HasPrefix(c.Recommendation, "Moderate SELL") {
		t.Errorf("got %s %q", c.Consensus.Signal, c.Recommendation)
	}
}

func TestCompareResults_Empty(t *testing.T) {
	c := compareResults("X", map[string]Result{})
	if c.Consensus.Signal != SignalHold || c.Best != nil || c.Recommendation == "" {
		t.Errorf("unexpected empty comparison %+v", c)
	}
}

func TestManager_Best(t *testing.T) {
	m := newTestManager(WithoutDefaults())
	m.Register("calm", newStub("calm", SignalHold, 0.95))
	m.Register("b_buy", newStub("b_buy", SignalBuy, 0.6))
	m.Register("a_buy", newStub("a_buy", SignalBuy, 0.6))

	p, ok := m.Best(candlesFrom(linear(100, 1, 5)), "BTCUSDT")
	if !ok || p.Name != "a_buy" {
		t.Errorf("best = %+v, want a_buy (directional, alphabetical tie-break)", p)
	}

	m.Remove("a_buy")
	m.Remove("b_buy")
	p, _ = m.Best(candlesFrom(linear(100, 1, 5)), "BTCUSDT")
	if p.Name != "calm" {
		t.Errorf("without directional results best should be calm, got %s", p.Name)
	}
}

// ────────────────────────────────────────────────────────────
// Export / import
// ────────────────────────────────────────────────────────────

func TestManager_ExportImportRoundTrip(t *testing.T) {
	m := newTestManager()
	if err := m.Create(TypeCombined, "combined_tuned", Params{"rsi_period": 21, "macd_fast_period": 10, "rsi_weight": 0.7}); err != nil {
		t.Fatal(err)
	}
	before := m.Snapshot().Strategies

	data, err := m.Export()
	if err != nil {
		t.Fatal(err)
	}
	m.Clear()

	rep, err := m.Import(data)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 6 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if after := m.Snapshot().Strategies; !reflect.DeepEqual(before, after) {
		t.Errorf("round trip mismatch:\n before %v\n after  %v", before, after)
	}
}

func TestManager_ImportErrors(t *testing.T) {
	m := newTestManager(WithoutDefaults())

	if _, err := m.Import([]byte("strategies: [not, a, map")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := m.Import([]byte("strategies: {}\n")); !errors.Is(err, ErrEmptyExport) {
		t.Errorf("expected ErrEmptyExport, got %v", err)
	}

	doc := `
strategies:
  good:
    type: rsi
    parameters:
      period: 10
  bad:
    type: rsi
    parameters:
      period: 500
  alien:
    type: ichimoku
`
	rep, err := m.Import([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Imported != 1 || rep.Failed != 2 || len(rep.Errors) != 2 {
		t.Errorf("report = %+v", rep)
	}
	if s, ok := m.Get("good"); !ok || s.Params().Int("period") != 10 {
		t.Error("good strategy should be imported")
	}
}

func TestManager_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	doc := "strategies:\n  swing:\n    type: macd\n    parameters:\n      fast_period: 8\n      slow_period: 21\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(WithoutDefaults())
	rep, err := m.LoadFile(path)
	if err != nil || rep.Imported != 1 {
		t.Fatalf("LoadFile: %+v %v", rep, err)
	}
	if _, err := m.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
