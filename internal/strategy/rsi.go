package strategy

import (
	"fmt"
	"math"

	"github.com/is42day/binance-trading-agent-sub000/internal/indicator"
	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// RSISchema declares the parameters of RSIStrategy.
func RSISchema() Schema {
	return Schema{
		"period":             intParam(14, 2, 50, "RSI lookback in candles"),
		"overbought":         floatParam(70, 50, 95, "RSI level above which the market is overbought"),
		"oversold":           floatParam(30, 5, 50, "RSI level below which the market is oversold"),
		"extreme_overbought": floatParam(80, 70, 95, "RSI level for a high-confidence sell"),
		"extreme_oversold":   floatParam(20, 5, 30, "RSI level for a high-confidence buy"),
	}
}

// RSIStrategy is a mean-reversion strategy on RSI thresholds.
type RSIStrategy struct {
	base
	period            int
	overbought        float64
	oversold          float64
	extremeOverbought float64
	extremeOversold   float64
}

// NewRSIStrategy validates params (nil for defaults) and builds the strategy.
// Thresholds are only range-checked; classify resolves overlapping levels
// by rule priority.
func NewRSIStrategy(params Params) (*RSIStrategy, error) {
	schema := RSISchema()
	vals, err := schema.Validate(TypeRSI, params)
	if err != nil {
		return nil, err
	}

	s := &RSIStrategy{
		base: base{
			name:        "RSI",
			description: "Buys oversold and sells overbought markets using the Relative Strength Index",
			kind:        TypeRSI,
			schema:      schema,
			params:      vals,
		},
		period:            vals.Int("period"),
		overbought:        vals.Float("overbought"),
		oversold:          vals.Float("oversold"),
		extremeOverbought: vals.Float("extreme_overbought"),
		extremeOversold:   vals.Float("extreme_oversold"),
	}
	return s, nil
}

func (s *RSIStrategy) RequiresMinimumData() int { return s.period + 1 }

func (s *RSIStrategy) Analyze(candles []model.Candle, symbol string) Result {
	if res, ok := precheck(candles, s.RequiresMinimumData()); !ok {
		return res
	}

	rsi, err := indicator.RSI(model.Closes(candles), s.period)
	if err != nil {
		return errorResult(err.Error(), nil)
	}

	sig, conf, reason := s.classify(rsi)
	price := model.LastClose(candles)

	res := newResult(sig, conf,
		map[string]float64{"rsi": round(rsi, 4)},
		map[string]any{
			"symbol":        symbol,
			"reason":        reason,
			"current_price": price,
			"period":        s.period,
		})

	switch sig {
	case SignalBuy:
		return res.withLevels(price*1.02, price*0.98, price*1.05)
	case SignalSell:
		return res.withLevels(price*0.98, price*1.02, price*0.95)
	}
	return res
}

// classify applies the threshold rules in priority order.
func (s *RSIStrategy) classify(rsi float64) (SignalType, float64, string) {
	switch {
	case rsi <= s.extremeOversold:
		return SignalBuy,
			math.Min(0.9, (s.extremeOversold-rsi)/s.extremeOversold+0.6),
			fmt.Sprintf("RSI %.2f at or below extreme oversold %.0f", rsi, s.extremeOversold)
	case rsi < s.oversold:
		return SignalBuy,
			math.Min(0.8, (s.oversold-rsi)/s.oversold+0.4),
			fmt.Sprintf("RSI %.2f below oversold %.0f", rsi, s.oversold)
	case rsi > s.extremeOverbought:
		return SignalSell,
			math.Min(0.9, (rsi-s.extremeOverbought)/(100-s.extremeOverbought)+0.6),
			fmt.Sprintf("RSI %.2f above extreme overbought %.0f", rsi, s.extremeOverbought)
	case rsi > s.overbought:
		return SignalSell,
			math.Min(0.8, (rsi-s.overbought)/(100-s.overbought)+0.4),
			fmt.Sprintf("RSI %.2f above overbought %.0f", rsi, s.overbought)
	}
	return SignalHold,
		math.Max(0.1, 1-math.Abs(rsi-50)/50),
		fmt.Sprintf("RSI %.2f in neutral zone", rsi)
}

func (s *RSIStrategy) RiskMetrics(candles []model.Candle) RiskMetrics {
	m := baseRiskMetrics(candles)
	if len(candles) < s.RequiresMinimumData() {
		return m
	}
	if rsi, err := indicator.RSI(model.Closes(candles), s.period); err == nil {
		m["rsi"] = rsi
		m["rsi_extremity"] = math.Abs(rsi-50) / 50
	}
	return m
}
