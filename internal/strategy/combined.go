package strategy

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

const (
	rsiPrefix  = "rsi_"
	macdPrefix = "macd_"
)

// CombinedSchema declares the parameters owned by CombinedStrategy itself.
// Sub-strategy parameters are accepted with rsi_ and macd_ prefixes.
func CombinedSchema() Schema {
	return Schema{
		"rsi_weight":                    floatParam(0.6, 0, 1, "weight of the RSI signal; MACD gets 1 - rsi_weight"),
		"min_agreement_threshold":       floatParam(0.5, 0, 1, "agreement score below which the result is HOLD"),
		"require_direction_agreement":   boolParam(true, "HOLD when RSI and MACD point in opposite directions"),
		"confidence_boost_on_agreement": floatParam(0.2, 0, 0.5, "confidence added when both signals match"),
	}
}

// CombinedStrategy blends one RSIStrategy and one MACDStrategy.
type CombinedStrategy struct {
	base
	rsi  *RSIStrategy
	macd *MACDStrategy

	rsiWeight    float64
	macdWeight   float64
	minAgreement float64
	requireAgree bool
	boost        float64
	fallbacks    []string
}

// NewCombinedStrategy splits params into own, rsi_* and macd_* sets.
// Invalid own parameters fail; a sub-strategy whose parameters are rejected
// is replaced by its defaults and listed in Fallbacks.
func NewCombinedStrategy(params Params) (*CombinedStrategy, error) {
	schema := CombinedSchema()
	own, rsiParams, macdParams := Params{}, Params{}, Params{}

	for k, v := range params {
		switch {
		case isOwn(schema, k):
			own[k] = v
		case k == "macd_weight":
			// derived; honoured only when rsi_weight is not given
			if _, set := params["rsi_weight"]; !set {
				if w, ok := asFloat(v); ok {
					own["rsi_weight"] = 1 - w
				} else {
					own["rsi_weight"] = v
				}
			}
		case strings.HasPrefix(k, rsiPrefix):
			rsiParams[strings.TrimPrefix(k, rsiPrefix)] = v
		case strings.HasPrefix(k, macdPrefix):
			macdParams[strings.TrimPrefix(k, macdPrefix)] = v
		default:
			return nil, &ParamError{Strategy: TypeCombined, Param: k, Value: v, Reason: "unknown parameter"}
		}
	}

	vals, err := schema.Validate(TypeCombined, own)
	if err != nil {
		return nil, err
	}

	s := &CombinedStrategy{
		base: base{
			name:        "Combined RSI+MACD",
			description: "Weighted consensus of RSI mean reversion and MACD trend signals",
			kind:        TypeCombined,
			schema:      schema,
			params:      vals,
		},
		rsiWeight:    vals.Float("rsi_weight"),
		minAgreement: vals.Float("min_agreement_threshold"),
		requireAgree: vals.Bool("require_direction_agreement"),
		boost:        vals.Float("confidence_boost_on_agreement"),
	}
	s.macdWeight = 1 - s.rsiWeight

	if s.rsi, err = NewRSIStrategy(rsiParams); err != nil {
		log.Printf("[strategy] combined: rsi parameters rejected, using defaults: %v", err)
		s.rsi, _ = NewRSIStrategy(nil)
		s.fallbacks = append(s.fallbacks, TypeRSI)
	}
	if s.macd, err = NewMACDStrategy(macdParams); err != nil {
		log.Printf("[strategy] combined: macd parameters rejected, using defaults: %v", err)
		s.macd, _ = NewMACDStrategy(nil)
		s.fallbacks = append(s.fallbacks, TypeMACD)
	}
	return s, nil
}

func isOwn(schema Schema, key string) bool {
	_, ok := schema[key]
	return ok
}

// RSI returns the wrapped RSI strategy.
func (s *CombinedStrategy) RSI() *RSIStrategy { return s.rsi }

// MACD returns the wrapped MACD strategy.
func (s *CombinedStrategy) MACD() *MACDStrategy { return s.macd }

// Fallbacks lists the sub-strategies that were built from defaults.
func (s *CombinedStrategy) Fallbacks() []string {
	return append([]string(nil), s.fallbacks...)
}

// Parameters includes the prefixed sub-strategy parameters.
func (s *CombinedStrategy) Parameters() Schema {
	out := s.schema.Clone()
	for k, v := range s.rsi.Parameters() {
		out[rsiPrefix+k] = v
	}
	for k, v := range s.macd.Parameters() {
		out[macdPrefix+k] = v
	}
	return out
}

// Params includes the prefixed sub-strategy values so an export can
// rebuild the same configuration.
func (s *CombinedStrategy) Params() Params {
	out := s.params.Clone()
	for k, v := range s.rsi.Params() {
		out[rsiPrefix+k] = v
	}
	for k, v := range s.macd.Params() {
		out[macdPrefix+k] = v
	}
	return out
}

func (s *CombinedStrategy) RequiresMinimumData() int {
	return max(s.rsi.RequiresMinimumData(), s.macd.RequiresMinimumData())
}

func (s *CombinedStrategy) Analyze(candles []model.Candle, symbol string) Result {
	if res, ok := precheck(candles, s.RequiresMinimumData()); !ok {
		return res
	}

	r := s.rsi.Analyze(candles, symbol)
	m := s.macd.Analyze(candles, symbol)
	if r.HasError() || m.HasError() {
		return errorResult(fmt.Sprintf("sub-strategy failed: rsi=%v macd=%v",
			r.Metadata["error"], m.Metadata["error"]), nil)
	}

	sig, conf, reason := s.combine(r, m)
	wavg := r.Confidence*s.rsiWeight + m.Confidence*s.macdWeight

	indicators := make(map[string]float64, len(r.Indicators)+len(m.Indicators))
	for k, v := range r.Indicators {
		indicators[k] = v
	}
	for k, v := range m.Indicators {
		indicators[k] = v
	}

	res := newResult(sig, conf, indicators, map[string]any{
		"symbol":              symbol,
		"reason":              reason,
		"current_price":       model.LastClose(candles),
		"rsi_signal":          r.Signal.String(),
		"rsi_confidence":      r.Confidence,
		"macd_signal":         m.Signal.String(),
		"macd_confidence":     m.Confidence,
		"agreement_score":     round(agreementScore(r, m), 4),
		"weighted_confidence": round(wavg, 4),
	})
	res.PriceTarget = s.blend(r.PriceTarget, m.PriceTarget)
	res.StopLoss = s.blend(r.StopLoss, m.StopLoss)
	res.TakeProfit = s.blend(r.TakeProfit, m.TakeProfit)
	return res
}

// combine applies the consensus rules to the two sub-results.
func (s *CombinedStrategy) combine(r, m Result) (SignalType, float64, string) {
	wavg := r.Confidence*s.rsiWeight + m.Confidence*s.macdWeight
	agreement := agreementScore(r, m)

	switch {
	case s.requireAgree && r.Signal.Opposes(m.Signal):
		return SignalHold, 0.5 * wavg,
			fmt.Sprintf("RSI %s conflicts with MACD %s", r.Signal, m.Signal)
	case agreement < s.minAgreement:
		return SignalHold, 0.6 * wavg,
			fmt.Sprintf("agreement %.2f below threshold %.2f", agreement, s.minAgreement)
	case r.Signal == m.Signal:
		return r.Signal, math.Min(0.95, wavg+s.boost),
			fmt.Sprintf("RSI and MACD agree on %s", r.Signal)
	}

	score := r.Signal.Direction()*r.Confidence*s.rsiWeight +
		m.Signal.Direction()*m.Confidence*s.macdWeight
	sig := SignalHold
	switch {
	case score > 0.1:
		sig = SignalBuy
	case score < -0.1:
		sig = SignalSell
	}
	return sig, wavg * agreement, fmt.Sprintf("weighted score %.3f", score)
}

// blend is the weighted average of two optional price levels.
func (s *CombinedStrategy) blend(a, b *float64) *float64 {
	switch {
	case a != nil && b != nil:
		return ptr(*a*s.rsiWeight + *b*s.macdWeight)
	case a != nil:
		return ptr(*a)
	case b != nil:
		return ptr(*b)
	}
	return nil
}

// agreementScore measures how strongly two signals corroborate each other.
func agreementScore(a, b Result) float64 {
	switch {
	case a.Signal == SignalHold && b.Signal == SignalHold:
		return 0.6
	case a.Signal == SignalHold:
		return 0.5 + b.Confidence*0.3
	case b.Signal == SignalHold:
		return 0.5 + a.Confidence*0.3
	case a.Signal == b.Signal:
		return math.Min(1, 0.7+(a.Confidence+b.Confidence)*0.15)
	}
	return 0.2
}

func (s *CombinedStrategy) RiskMetrics(candles []model.Candle) RiskMetrics {
	m := baseRiskMetrics(candles)
	for _, sub := range []RiskMetrics{s.rsi.RiskMetrics(candles), s.macd.RiskMetrics(candles)} {
		for k, v := range sub {
			if _, shared := m[k]; !shared {
				m[k] = v
			}
		}
	}
	if len(candles) >= s.RequiresMinimumData() {
		r := s.rsi.Analyze(candles, "")
		mc := s.macd.Analyze(candles, "")
		if !r.HasError() && !mc.HasError() {
			m["agreement"] = agreementScore(r, mc)
		}
	}
	return m
}
