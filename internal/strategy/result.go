package strategy

import (
	"math"
	"time"
)

// Result is the outcome of one strategy analysing one candle window.
// Results are built once by Analyze and never modified afterwards.
type Result struct {
	Signal      SignalType         `json:"signal"`
	Confidence  float64            `json:"confidence"`
	PriceTarget *float64           `json:"price_target,omitempty"`
	StopLoss    *float64           `json:"stop_loss,omitempty"`
	TakeProfit  *float64           `json:"take_profit,omitempty"`
	Indicators  map[string]float64 `json:"indicators"`
	Metadata    map[string]any     `json:"metadata"`
	Timestamp   time.Time          `json:"timestamp"`
}

// newResult builds a Result with confidence clamped to [0,1].
func newResult(sig SignalType, confidence float64, indicators map[string]float64, metadata map[string]any) Result {
	if indicators == nil {
		indicators = map[string]float64{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Result{
		Signal:     sig,
		Confidence: clamp01(confidence),
		Indicators: indicators,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
	}
}

// errorResult is the HOLD/0 answer for any condition that prevents analysis.
func errorResult(reason string, metadata map[string]any) Result {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["error"] = reason
	return newResult(SignalHold, 0, nil, metadata)
}

// withLevels attaches price levels; HOLD results never carry levels.
func (r Result) withLevels(target, stop, takeProfit float64) Result {
	if r.Signal == SignalHold {
		return r
	}
	r.PriceTarget = ptr(target)
	r.StopLoss = ptr(stop)
	r.TakeProfit = ptr(takeProfit)
	return r
}

// HasError reports whether the result was produced by a failed analysis.
func (r Result) HasError() bool {
	_, ok := r.Metadata["error"]
	return ok
}

func ptr(v float64) *float64 { return &v }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
