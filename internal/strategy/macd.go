package strategy

import (
	"fmt"
	"math"

	"github.com/is42day/binance-trading-agent-sub000/internal/indicator"
	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// macdBuffer is the warm-up allowance on top of slow+signal candles.
const macdBuffer = 10

// MACDSchema declares the parameters of MACDStrategy.
func MACDSchema() Schema {
	return Schema{
		"fast_period":                    intParam(12, 5, 50, "fast EMA period"),
		"slow_period":                    intParam(26, 10, 100, "slow EMA period"),
		"signal_period":                  intParam(9, 3, 30, "signal line EMA period"),
		"histogram_threshold":            floatParam(0, -1, 1, "histogram level a signal must clear"),
		"require_histogram_confirmation": boolParam(true, "downgrade signals the histogram does not confirm"),
	}
}

// MACDStrategy is a trend-following strategy on MACD/signal crossovers.
type MACDStrategy struct {
	base
	fast, slow, signal int
	threshold          float64
	confirm            bool
}

// NewMACDStrategy validates params (nil for defaults) and builds the strategy.
func NewMACDStrategy(params Params) (*MACDStrategy, error) {
	schema := MACDSchema()
	vals, err := schema.Validate(TypeMACD, params)
	if err != nil {
		return nil, err
	}

	s := &MACDStrategy{
		base: base{
			name:        "MACD",
			description: "Follows trend changes from MACD line and signal line crossovers",
			kind:        TypeMACD,
			schema:      schema,
			params:      vals,
		},
		fast:      vals.Int("fast_period"),
		slow:      vals.Int("slow_period"),
		signal:    vals.Int("signal_period"),
		threshold: vals.Float("histogram_threshold"),
		confirm:   vals.Bool("require_histogram_confirmation"),
	}
	if s.fast >= s.slow {
		return nil, &ParamError{Strategy: TypeMACD, Param: "fast_period", Value: s.fast,
			Reason: fmt.Sprintf("must be below slow_period (%d)", s.slow)}
	}
	return s, nil
}

func (s *MACDStrategy) RequiresMinimumData() int { return s.slow + s.signal + macdBuffer }

func (s *MACDStrategy) Analyze(candles []model.Candle, symbol string) Result {
	if res, ok := precheck(candles, s.RequiresMinimumData()); !ok {
		return res
	}

	m, err := indicator.MACD(model.Closes(candles), s.fast, s.slow, s.signal)
	if err != nil {
		return errorResult(err.Error(), nil)
	}

	sig, conf, reason := s.classify(m)
	price := model.LastClose(candles)

	res := newResult(sig, conf,
		map[string]float64{
			"macd":           round(m.MACD, 6),
			"macd_signal":    round(m.Signal, 6),
			"macd_histogram": round(m.Histogram, 6),
		},
		map[string]any{
			"symbol":        symbol,
			"reason":        reason,
			"current_price": price,
			"crossover":     crossover(m),
		})

	if sig == SignalHold {
		return res
	}
	target := 0.02 + math.Min(0.05, math.Abs(m.Histogram)/price)
	const stop = 0.015
	if sig == SignalBuy {
		return res.withLevels(price*(1+target), price*(1-stop), price*(1+2*target))
	}
	return res.withLevels(price*(1-target), price*(1+stop), price*(1-2*target))
}

func (s *MACDStrategy) classify(m indicator.MACDResult) (SignalType, float64, string) {
	diff := m.MACD - m.Signal

	var sig SignalType
	switch {
	case diff > 0:
		sig = SignalBuy
	case diff < 0:
		sig = SignalSell
	default:
		return SignalHold, 0.3, "MACD equals signal line"
	}

	if s.confirm {
		if sig == SignalBuy && !(m.Histogram > s.threshold) {
			return SignalHold, 0.4, fmt.Sprintf("bullish MACD not confirmed by histogram %.6f", m.Histogram)
		}
		if sig == SignalSell && !(m.Histogram < -s.threshold) {
			return SignalHold, 0.4, fmt.Sprintf("bearish MACD not confirmed by histogram %.6f", m.Histogram)
		}
	}

	conf := math.Min(0.8, math.Abs(diff)*10)
	if math.Abs(m.Histogram) > 2*math.Abs(s.threshold) {
		conf = math.Min(0.9, conf*1.2)
	}
	conf = math.Max(conf, 0.5)

	if sig == SignalBuy {
		return sig, conf, fmt.Sprintf("MACD %.6f above signal %.6f", m.MACD, m.Signal)
	}
	return sig, conf, fmt.Sprintf("MACD %.6f below signal %.6f", m.MACD, m.Signal)
}

// crossover labels a sign change of MACD minus signal on the latest bar.
func crossover(m indicator.MACDResult) string {
	n := len(m.HistLine)
	if n < 2 {
		return "none"
	}
	prev, cur := m.HistLine[n-2], m.HistLine[n-1]
	switch {
	case prev <= 0 && cur > 0:
		return "bullish"
	case prev >= 0 && cur < 0:
		return "bearish"
	}
	return "none"
}

func (s *MACDStrategy) RiskMetrics(candles []model.Candle) RiskMetrics {
	m := baseRiskMetrics(candles)
	if len(candles) < s.RequiresMinimumData() {
		return m
	}
	if res, err := indicator.MACD(model.Closes(candles), s.fast, s.slow, s.signal); err == nil {
		m["macd_histogram"] = res.Histogram
		if price := model.LastClose(candles); price > 0 {
			m["histogram_strength"] = math.Abs(res.Histogram) / price
		}
	}
	return m
}
