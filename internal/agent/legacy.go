package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/is42day/binance-trading-agent-sub000/internal/indicator"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

// Errors returned by the single-indicator functions. Unlike the manager
// path these functions report bad input instead of degrading to HOLD.
var (
	ErrEmptyInput       = errors.New("no candles supplied")
	ErrMalformedCandle  = errors.New("malformed candle")
	ErrUnknownIndicator = errors.New("unknown indicator")
)

const (
	legacyRSIPeriod  = 14
	legacyOversold   = 30
	legacyOverbought = 70
)

// ComputeRSI returns the RSI over the "close" values of rows. A period of
// zero or less means 14.
func ComputeRSI(rows []map[string]any, period int) (float64, error) {
	if period <= 0 {
		period = legacyRSIPeriod
	}
	closes, err := closesFromRows(rows)
	if err != nil {
		return 0, err
	}
	v, err := indicator.RSI(closes, period)
	if err != nil {
		return 0, fmt.Errorf("compute rsi: %w", err)
	}
	return v, nil
}

// ComputeMACD returns MACD(12,26,9) over the "close" values of rows.
func ComputeMACD(rows []map[string]any) (indicator.MACDResult, error) {
	closes, err := closesFromRows(rows)
	if err != nil {
		return indicator.MACDResult{}, err
	}
	m, err := indicator.MACD(closes, 12, 26, 9)
	if err != nil {
		return indicator.MACDResult{}, fmt.Errorf("compute macd: %w", err)
	}
	return m, nil
}

// ComputeSignal returns "buy", "sell" or "hold" from a single indicator:
// RSI below 30 buys and above 70 sells; a positive MACD histogram buys and
// a negative one sells.
func ComputeSignal(rows []map[string]any, name string) (string, error) {
	switch strings.ToLower(name) {
	case "rsi":
		v, err := ComputeRSI(rows, legacyRSIPeriod)
		if err != nil {
			return "", err
		}
		switch {
		case v < legacyOversold:
			return strategy.SignalBuy.Lower(), nil
		case v > legacyOverbought:
			return strategy.SignalSell.Lower(), nil
		}
		return strategy.SignalHold.Lower(), nil

	case "macd":
		m, err := ComputeMACD(rows)
		if err != nil {
			return "", err
		}
		switch {
		case m.Histogram > 0:
			return strategy.SignalBuy.Lower(), nil
		case m.Histogram < 0:
			return strategy.SignalSell.Lower(), nil
		}
		return strategy.SignalHold.Lower(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
}

func closesFromRows(rows []map[string]any) ([]float64, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		raw, ok := row["close"]
		if !ok || raw == nil {
			return nil, fmt.Errorf("%w: row %d has no close", ErrMalformedCandle, i)
		}
		v, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d close %v: %v", ErrMalformedCandle, i, raw, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: row %d close is not finite", ErrMalformedCandle, i)
		}
		out[i] = v
	}
	return out, nil
}

// toFloat accepts numbers and numeric strings; Binance serialises prices
// as strings.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
