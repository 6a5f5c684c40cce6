// Package strategy turns candle windows into trading signals.
//
// A Strategy is a stateless, parameterised analysis: the same candles and
// parameters always produce the same signal. The Manager owns a named
// registry of strategies, runs and compares them, and keeps a capped
// performance log per name.
package strategy

import (
	"fmt"
	"math"

	"github.com/is42day/binance-trading-agent-sub000/internal/indicator"
	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// Strategy is implemented by every signal generator.
type Strategy interface {
	// Analyze evaluates candles (oldest first) for symbol. It never fails:
	// insufficient or unusable data yields HOLD with zero confidence and an
	// "error" metadata entry.
	Analyze(candles []model.Candle, symbol string) Result

	Name() string
	Description() string

	// Parameters declares every tunable parameter.
	Parameters() Schema

	// Params returns the validated parameter values of this instance.
	Params() Params

	// Type returns the factory tag that recreates this strategy.
	Type() string

	// RequiresMinimumData is the smallest window that yields a real signal.
	RequiresMinimumData() int

	RiskMetrics(candles []model.Candle) RiskMetrics
}

// RiskMetrics holds named risk figures. Every strategy reports
// "volatility" and "risk_level" in [0,1].
type RiskMetrics map[string]float64

// base carries the identity and parameter set shared by all strategies.
type base struct {
	name        string
	description string
	kind        string
	schema      Schema
	params      Params
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }
func (b *base) Type() string        { return b.kind }
func (b *base) Parameters() Schema  { return b.schema.Clone() }
func (b *base) Params() Params      { return b.params.Clone() }

// Param returns a single parameter value.
func (b *base) Param(name string) any { return b.params[name] }

// RequiresMinimumData defaults to a single candle.
func (b *base) RequiresMinimumData() int { return 1 }

// precheck returns an error result when candles cannot be analysed.
func precheck(candles []model.Candle, required int) (Result, bool) {
	if len(candles) < required {
		return errorResult(
			fmt.Sprintf("insufficient data: need %d candles, got %d", required, len(candles)),
			map[string]any{"required_candles": required, "candle_count": len(candles)},
		), false
	}
	if err := model.ValidateCandles(candles); err != nil {
		return errorResult("malformed candles: "+err.Error(), nil), false
	}
	return Result{}, true
}

func baseRiskMetrics(candles []model.Candle) RiskMetrics {
	vol := indicator.Volatility(model.Closes(candles), indicator.DefaultVolatilityWindow)
	return RiskMetrics{
		"volatility": vol,
		"risk_level": math.Min(1, vol*20),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
