package indicator

import "fmt"

// RSI calculates the Relative Strength Index over the most recent period
// price deltas of closes. Gains and losses are simple averages over the
// window; a window without losses yields 100.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period %d: %w", period, ErrInvalidPeriod)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi(%d) needs %d closes, got %d: %w",
			period, period+1, len(closes), ErrInsufficientData)
	}

	var gains, losses float64
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0, nil
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs)), nil
}
