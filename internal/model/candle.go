package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Candle is one OHLCV observation for a symbol at a fixed interval.
// Sequences of candles are always ordered oldest first.
type Candle struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"` // open time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close prices of candles, preserving order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// LastClose returns the close of the newest candle, or 0 for an empty window.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// ValidateCandles rejects windows containing prices no indicator can use.
func ValidateCandles(candles []Candle) error {
	for i := range candles {
		c := candles[i].Close
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("candle %d: close is not a finite number", i)
		}
		if c <= 0 {
			return fmt.Errorf("candle %d: close must be positive, got %v", i, c)
		}
	}
	return nil
}
