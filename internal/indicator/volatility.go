package indicator

import "math"

// DefaultVolatilityWindow is the number of candles used for risk metrics.
const DefaultVolatilityWindow = 20

// Volatility returns the root-mean-square of percentage returns over the
// last window closes. Series shorter than two closes have zero volatility.
func Volatility(closes []float64, window int) float64 {
	if window <= 0 {
		window = DefaultVolatilityWindow
	}
	if len(closes) > window {
		closes = closes[len(closes)-window:]
	}
	if len(closes) < 2 {
		return 0
	}

	var sumSq float64
	n := 0
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		r := (closes[i] - closes[i-1]) / closes[i-1]
		sumSq += r * r
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}
