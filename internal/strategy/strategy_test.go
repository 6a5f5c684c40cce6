package strategy

import (
	"encoding/json"
	"math"
	"testing"
)

func TestAnalyze_InsufficientDataIsHold(t *testing.T) {
	for _, s := range allVariants(t) {
		for _, n := range []int{0, 1, s.RequiresMinimumData() - 1} {
			res := s.Analyze(candlesFrom(linear(100, 1, n)), "BTCUSDT")
			if res.Signal != SignalHold || res.Confidence != 0 {
				t.Errorf("%s with %d candles: got %s/%.2f, want HOLD/0", s.Name(), n, res.Signal, res.Confidence)
			}
			if _, ok := res.Metadata["error"]; !ok {
				t.Errorf("%s with %d candles: expected error metadata", s.Name(), n)
			}
			if res.PriceTarget != nil {
				t.Errorf("%s: HOLD must not carry price levels", s.Name())
			}
		}
	}
}

func TestAnalyze_MinimumData(t *testing.T) {
	rsi := mustRSI(t, Params{"period": 21})
	if rsi.RequiresMinimumData() != 22 {
		t.Errorf("rsi min data = %d, want 22", rsi.RequiresMinimumData())
	}
	macd := mustMACD(t, nil)
	if macd.RequiresMinimumData() != 26+9+macdBuffer {
		t.Errorf("macd min data = %d, want %d", macd.RequiresMinimumData(), 26+9+macdBuffer)
	}
	comb := mustCombined(t, nil)
	if comb.RequiresMinimumData() != macd.RequiresMinimumData() {
		t.Errorf("combined min data = %d, want %d", comb.RequiresMinimumData(), macd.RequiresMinimumData())
	}
}

func TestAnalyze_ConfidenceBounds(t *testing.T) {
	series := [][]float64{
		linear(100, 1, 80),
		linear(200, -2, 80),
		reboundSeries(),
		randomWalk(1, 120),
		randomWalk(7, 60),
		randomWalk(42, 200),
	}
	for _, s := range allVariants(t) {
		for i, closes := range series {
			res := s.Analyze(candlesFrom(closes), "BTCUSDT")
			if res.Confidence < 0 || res.Confidence > 1 || math.IsNaN(res.Confidence) {
				t.Errorf("%s series %d: confidence %.4f out of [0,1]", s.Name(), i, res.Confidence)
			}
			if res.HasError() {
				t.Errorf("%s series %d: unexpected error %v", s.Name(), i, res.Metadata["error"])
			}
		}
	}
}

func TestAnalyze_DoesNotMutateCandles(t *testing.T) {
	candles := candlesFrom(randomWalk(3, 80))
	before, _ := json.Marshal(candles)
	for _, s := range allVariants(t) {
		s.Analyze(candles, "BTCUSDT")
	}
	after, _ := json.Marshal(candles)
	if string(before) != string(after) {
		t.Fatal("Analyze mutated its input")
	}
}

func TestAnalyze_IsRepeatable(t *testing.T) {
	candles := candlesFrom(randomWalk(11, 90))
	for _, s := range allVariants(t) {
		a := s.Analyze(candles, "ETHUSDT")
		b := s.Analyze(candles, "ETHUSDT")
		if a.Signal != b.Signal || a.Confidence != b.Confidence {
			t.Errorf("%s: repeated analysis differs: %s/%.4f vs %s/%.4f",
				s.Name(), a.Signal, a.Confidence, b.Signal, b.Confidence)
		}
	}
}

func TestAnalyze_MalformedCandles(t *testing.T) {
	closes := linear(100, 1, 60)
	closes[30] = math.NaN()
	for _, s := range allVariants(t) {
		res := s.Analyze(candlesFrom(closes), "BTCUSDT")
		if res.Signal != SignalHold || res.Confidence != 0 || !res.HasError() {
			t.Errorf("%s: malformed input should give HOLD/0 with error, got %s/%.2f", s.Name(), res.Signal, res.Confidence)
		}
	}
}

func TestRiskMetrics(t *testing.T) {
	candles := candlesFrom(randomWalk(5, 80))
	for _, s := range allVariants(t) {
		m := s.RiskMetrics(candles)
		vol, ok := m["volatility"]
		if !ok || vol <= 0 {
			t.Errorf("%s: expected positive volatility, got %v", s.Name(), m)
		}
		if lvl := m["risk_level"]; lvl < 0 || lvl > 1 {
			t.Errorf("%s: risk_level %.4f out of [0,1]", s.Name(), lvl)
		}
	}

	if m := mustRSI(t, nil).RiskMetrics(candles); m["rsi_extremity"] < 0 || m["rsi_extremity"] > 1 {
		t.Errorf("rsi_extremity out of range: %v", m)
	}
	if _, ok := mustCombined(t, nil).RiskMetrics(candles)["agreement"]; !ok {
		t.Error("combined risk metrics should include agreement")
	}
	if m := mustRSI(t, nil).RiskMetrics(nil); m["volatility"] != 0 || m["risk_level"] != 0 {
		t.Errorf("empty window should have zero risk, got %v", m)
	}
}

func TestSignalType_Strings(t *testing.T) {
	cases := []struct {
		s     SignalType
		upper string
		lower string
	}{
		{SignalBuy, "BUY", "buy"},
		{SignalSell, "SELL", "sell"},
		{SignalHold, "HOLD", "hold"},
	}
	for _, tc := range cases {
		if tc.s.String() != tc.upper || tc.s.Lower() != tc.lower {
			t.Errorf("%d: got %s/%s", tc.s, tc.s.String(), tc.s.Lower())
		}
		parsed, err := ParseSignalType(tc.lower)
		if err != nil || parsed != tc.s {
			t.Errorf("ParseSignalType(%q) = %v, %v", tc.lower, parsed, err)
		}
	}
	if _, err := ParseSignalType("moon"); err == nil {
		t.Error("expected error for unknown signal")
	}
	if !SignalBuy.Opposes(SignalSell) || SignalBuy.Opposes(SignalHold) || SignalBuy.Opposes(SignalBuy) {
		t.Error("Opposes reports wrong relation")
	}
}

func TestSignalType_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]SignalType{"s": SignalSell})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"s":"SELL"}` {
		t.Errorf("unexpected JSON %s", b)
	}
	var back map[string]SignalType
	if err := json.Unmarshal(b, &back); err != nil || back["s"] != SignalSell {
		t.Errorf("round trip failed: %v %v", back, err)
	}
}
