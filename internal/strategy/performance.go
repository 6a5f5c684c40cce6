package strategy

import (
	"math"
	"time"
)

// PerformanceRecord is one entry of a strategy's performance log.
type PerformanceRecord struct {
	Timestamp   time.Time          `json:"timestamp"`
	Strategy    string             `json:"strategy"`
	Symbol      string             `json:"symbol"`
	Signal      SignalType         `json:"signal"`
	Confidence  float64            `json:"confidence"`
	Price       float64            `json:"price"`
	CandleCount int                `json:"candle_count"`
	Indicators  map[string]float64 `json:"indicators,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// Votes tallies signals.
type Votes struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

// Add counts one signal.
func (v *Votes) Add(s SignalType) {
	switch s {
	case SignalBuy:
		v.Buy++
	case SignalSell:
		v.Sell++
	default:
		v.Hold++
	}
}

// Count returns the votes for s.
func (v Votes) Count(s SignalType) int {
	switch s {
	case SignalBuy:
		return v.Buy
	case SignalSell:
		return v.Sell
	default:
		return v.Hold
	}
}

// Total returns the number of votes cast.
func (v Votes) Total() int { return v.Buy + v.Sell + v.Hold }

// Summary aggregates a strategy's performance log.
type Summary struct {
	Strategy          string     `json:"strategy"`
	TotalSignals      int        `json:"total_signals"`
	SignalCounts      Votes      `json:"signal_counts"`
	AverageConfidence float64    `json:"average_confidence"`
	MinConfidence     float64    `json:"min_confidence"`
	MaxConfidence     float64    `json:"max_confidence"`
	LastSignal        SignalType `json:"last_signal"`
	LastTimestamp     time.Time  `json:"last_timestamp"`
	Evicted           uint64     `json:"evicted"`
}

func summarize(name string, recs []PerformanceRecord, evicted uint64) Summary {
	s := Summary{Strategy: name, TotalSignals: len(recs), Evicted: evicted}
	if len(recs) == 0 {
		return s
	}
	s.MinConfidence = math.Inf(1)
	s.MaxConfidence = math.Inf(-1)
	var sum float64
	for _, r := range recs {
		s.SignalCounts.Add(r.Signal)
		sum += r.Confidence
		s.MinConfidence = math.Min(s.MinConfidence, r.Confidence)
		s.MaxConfidence = math.Max(s.MaxConfidence, r.Confidence)
	}
	s.AverageConfidence = sum / float64(len(recs))
	last := recs[len(recs)-1]
	s.LastSignal = last.Signal
	s.LastTimestamp = last.Timestamp
	return s
}

// History returns the performance log for name, oldest first.
func (m *Manager) History(name string) ([]PerformanceRecord, bool) {
	e, ok := m.lookup(name)
	if !ok || e.log == nil {
		return nil, false
	}
	return e.log.Snapshot(), true
}

// Summary aggregates the performance log for name.
func (m *Manager) Summary(name string) (Summary, bool) {
	e, ok := m.lookup(name)
	if !ok || e.log == nil {
		return Summary{}, false
	}
	return summarize(name, e.log.Snapshot(), e.log.Evicted()), true
}

// Summaries aggregates every strategy's performance log.
func (m *Manager) Summaries() map[string]Summary {
	out := make(map[string]Summary)
	for _, e := range m.entries() {
		if e.log == nil {
			continue
		}
		out[e.name] = summarize(e.name, e.log.Snapshot(), e.log.Evicted())
	}
	return out
}
