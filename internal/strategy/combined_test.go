package strategy

import (
	"errors"
	"reflect"
	"testing"
)

func TestCombined_PrefixedParams(t *testing.T) {
	s := mustCombined(t, Params{"rsi_period": 21, "rsi_overbought": 75, "macd_fast_period": 10})

	if got := s.RSI().Params().Int("period"); got != 21 {
		t.Errorf("rsi period = %d, want 21", got)
	}
	if got := s.RSI().Params().Float("overbought"); got != 75 {
		t.Errorf("rsi overbought = %v, want 75", got)
	}
	if got := s.MACD().Params().Int("fast_period"); got != 10 {
		t.Errorf("macd fast = %d, want 10", got)
	}
	if len(s.Fallbacks()) != 0 {
		t.Errorf("unexpected fallbacks %v", s.Fallbacks())
	}

	p := s.Params()
	if p.Int("rsi_period") != 21 || p.Int("macd_fast_period") != 10 || p.Float("rsi_weight") != 0.6 {
		t.Errorf("exported params incomplete: %v", p)
	}
	if _, ok := s.Parameters()["macd_signal_period"]; !ok {
		t.Error("Parameters should declare prefixed sub-strategy entries")
	}

	rebuilt := mustCombined(t, p)
	if !reflect.DeepEqual(rebuilt.Params(), p) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", rebuilt.Params(), p)
	}
	if s.RequiresMinimumData() != 26+9+macdBuffer {
		t.Errorf("min data = %d", s.RequiresMinimumData())
	}
}

func TestCombined_SubStrategyFallback(t *testing.T) {
	s := mustCombined(t, Params{"rsi_period": 100, "macd_fast_period": 10})

	if got := s.Fallbacks(); !reflect.DeepEqual(got, []string{TypeRSI}) {
		t.Fatalf("fallbacks = %v, want [rsi]", got)
	}
	if got := s.RSI().Params().Int("period"); got != 14 {
		t.Errorf("rsi should fall back to period 14, got %d", got)
	}
	if got := s.MACD().Params().Int("fast_period"); got != 10 {
		t.Errorf("macd params should be unaffected, got fast=%d", got)
	}
}

func TestCombined_InRangeRSIOverridesKept(t *testing.T) {
	s := mustCombined(t, Params{"rsi_period": 21, "rsi_overbought": 85})

	if len(s.Fallbacks()) != 0 {
		t.Fatalf("unexpected fallbacks %v", s.Fallbacks())
	}
	if got := s.RSI().Params().Int("period"); got != 21 {
		t.Errorf("rsi period = %d, want 21", got)
	}
	if got := s.RSI().Params().Float("overbought"); got != 85 {
		t.Errorf("rsi overbought = %v, want 85", got)
	}
}

func TestCombined_OwnParamErrors(t *testing.T) {
	for _, p := range []Params{
		{"rsi_weight": 2.0},
		{"confidence_boost_on_agreement": 0.9},
		{"lookback": 10},
	} {
		_, err := NewCombinedStrategy(p)
		if !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%v: expected ErrInvalidParameter, got %v", p, err)
		}
	}
}

func TestCombined_MACDWeight(t *testing.T) {
	s := mustCombined(t, Params{"macd_weight": 0.3})
	assertClose(t, "rsi_weight", s.Params().Float("rsi_weight"), 0.7, 1e-12)
	assertClose(t, "macd weight", s.macdWeight, 0.3, 1e-12)

	s = mustCombined(t, Params{"rsi_weight": 0.5, "macd_weight": 0.3})
	assertClose(t, "explicit rsi_weight wins", s.rsiWeight, 0.5, 1e-12)
}

func TestAgreementScore(t *testing.T) {
	r := func(sig SignalType, c float64) Result { return Result{Signal: sig, Confidence: c} }
	cases := []struct {
		a, b Result
		want float64
	}{
		{r(SignalHold, 0.9), r(SignalHold, 0.1), 0.6},
		{r(SignalHold, 0.9), r(SignalBuy, 0.5), 0.65},
		{r(SignalSell, 0.9), r(SignalHold, 0.1), 0.77},
		{r(SignalBuy, 0.9), r(SignalBuy, 0.6), 0.925},
		{r(SignalSell, 1), r(SignalSell, 1), 1.0},
		{r(SignalBuy, 0.9), r(SignalSell, 0.9), 0.2},
	}
	for _, tc := range cases {
		label := tc.a.Signal.String() + "/" + tc.b.Signal.String()
		assertClose(t, label, agreementScore(tc.a, tc.b), tc.want, 1e-9)
	}
}

func TestCombined_Combine(t *testing.T) {
	r := func(sig SignalType, c float64) Result { return Result{Signal: sig, Confidence: c} }
	def := mustCombined(t, nil)
	noAgree := mustCombined(t, Params{"require_direction_agreement": false})
	lowBar := mustCombined(t, Params{"require_direction_agreement": false, "min_agreement_threshold": 0.1})

	cases := []struct {
		name string
		s    *CombinedStrategy
		rsi  Result
		macd Result
		sig  SignalType
		conf float64
	}{
		{"conflict", def, r(SignalBuy, 0.9), r(SignalSell, 0.6), SignalHold, 0.39},
		{"agreement boosted", def, r(SignalBuy, 0.9), r(SignalBuy, 0.6), SignalBuy, 0.95},
		{"one side holds", def, r(SignalHold, 0.2), r(SignalBuy, 0.5), SignalBuy, 0.208},
		{"both hold", def, r(SignalHold, 0.8), r(SignalHold, 0.3), SignalHold, 0.8},
		{"weak agreement", noAgree, r(SignalBuy, 0.9), r(SignalSell, 0.6), SignalHold, 0.468},
		{"weighted score", lowBar, r(SignalBuy, 0.9), r(SignalSell, 0.6), SignalBuy, 0.156},
		{"score inside dead band", def, r(SignalHold, 0.9), r(SignalBuy, 0.2), SignalHold, 0.3472},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, conf, _ := tc.s.combine(tc.rsi, tc.macd)
			if sig != tc.sig {
				t.Errorf("got %s, want %s", sig, tc.sig)
			}
			assertClose(t, "confidence", conf, tc.conf, 1e-9)
		})
	}
}

func TestCombined_AnalyzeAgreement(t *testing.T) {
	s := mustCombined(t, nil)
	res := s.Analyze(candlesFrom(reboundSeries()), "BTCUSDT")

	if res.Signal != SignalBuy {
		t.Fatalf("expected BUY, got %s (%v)", res.Signal, res.Metadata["reason"])
	}
	assertClose(t, "confidence", res.Confidence, 0.95, 1e-9)
	if res.Metadata["rsi_signal"] != "BUY" || res.Metadata["macd_signal"] != "BUY" {
		t.Errorf("sub signals: %v / %v", res.Metadata["rsi_signal"], res.Metadata["macd_signal"])
	}
	for _, k := range []string{"rsi", "macd", "macd_signal", "macd_histogram"} {
		if _, ok := res.Indicators[k]; !ok {
			t.Errorf("missing indicator %q", k)
		}
	}
	if res.PriceTarget == nil || res.StopLoss == nil || res.TakeProfit == nil {
		t.Fatal("expected blended price levels")
	}
	if *res.PriceTarget <= 80 || *res.StopLoss >= 80 {
		t.Errorf("blended levels on the wrong side of price: %v %v", *res.PriceTarget, *res.StopLoss)
	}
}
