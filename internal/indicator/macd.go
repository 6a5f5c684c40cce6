package indicator

import "fmt"

// MACDResult holds the latest MACD readings plus the aligned series they
// were taken from.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`

	MACDLine   []float64 `json:"-"`
	SignalLine []float64 `json:"-"`
	HistLine   []float64 `json:"-"`
}

// MACD computes the moving average convergence/divergence of closes.
// The MACD line is fast EMA minus slow EMA, the signal line is the EMA of
// the MACD line and the histogram is their difference.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, fmt.Errorf("macd(%d,%d,%d): %w", fast, slow, signal, ErrInvalidPeriod)
	}
	if need := slow + signal; len(closes) < need {
		return MACDResult{}, fmt.Errorf("macd(%d,%d,%d) needs %d closes, got %d: %w",
			fast, slow, signal, need, len(closes), ErrInsufficientData)
	}

	macdLine := subtractAligned(EMA(closes, fast), EMA(closes, slow))
	signalLine := EMA(macdLine, signal)
	hist := subtractAligned(macdLine, signalLine)

	n := len(hist)
	return MACDResult{
		MACD:       macdLine[len(macdLine)-1],
		Signal:     signalLine[len(signalLine)-1],
		Histogram:  hist[n-1],
		MACDLine:   macdLine,
		SignalLine: signalLine,
		HistLine:   hist,
	}, nil
}

// subtractAligned returns a-b over the common tail of both series,
// trimming the head of the longer one.
func subtractAligned(a, b []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	offA, offB := len(a)-n, len(b)-n
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = a[offA+i] - b[offB+i]
	}
	return out
}
