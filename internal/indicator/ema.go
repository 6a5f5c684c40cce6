package indicator

// EMA returns the exponential moving average series of data, seeded with
// the first value: ema[0] = data[0], ema[i] = x*k + ema[i-1]*(1-k) with
// k = 2/(period+1). The result has the same length as data.
func EMA(data []float64, period int) []float64 {
	if len(data) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(data))
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = data[i]*k + out[i-1]*(1-k)
	}
	return out
}
