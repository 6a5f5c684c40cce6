package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// Consensus is the majority signal across strategies. A tie for the most
// votes resolves to HOLD, with Tied set and Strength the tied share.
type Consensus struct {
	Signal   SignalType `json:"signal"`
	Strength float64    `json:"strength"` // top vote count / total votes
	Tied     bool       `json:"tied,omitempty"`
	Votes    Votes      `json:"votes"`
}

// Pick names one strategy's result.
type Pick struct {
	Name   string `json:"name"`
	Result Result `json:"result"`
}

// Comparison is the outcome of running every strategy on the same window.
type Comparison struct {
	Symbol            string            `json:"symbol"`
	Consensus         Consensus         `json:"consensus"`
	Best              *Pick             `json:"best_strategy,omitempty"`
	AverageConfidence float64           `json:"average_confidence"`
	Results           map[string]Result `json:"results"`
	Recommendation    string            `json:"recommendation"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Compare runs all strategies and summarises their agreement.
func (m *Manager) Compare(candles []model.Candle, symbol string) Comparison {
	return compareResults(symbol, m.AnalyzeAll(candles, symbol))
}

// Best returns the most confident directional result, falling back to the
// most confident HOLD when no strategy has a direction.
func (m *Manager) Best(candles []model.Candle, symbol string) (Pick, bool) {
	return pickBest(m.AnalyzeAll(candles, symbol), true)
}

func compareResults(symbol string, results map[string]Result) Comparison {
	c := Comparison{
		Symbol:    symbol,
		Results:   results,
		Timestamp: time.Now().UTC(),
		Consensus: Consensus{Signal: SignalHold},
	}
	if len(results) == 0 {
		c.Recommendation = "No strategy produced a result"
		return c
	}

	var sum float64
	for _, r := range results {
		c.Consensus.Votes.Add(r.Signal)
		sum += r.Confidence
	}
	total := c.Consensus.Votes.Total()
	c.AverageConfidence = sum / float64(total)

	winner, top, tied := SignalHold, -1, false
	for _, s := range []SignalType{SignalBuy, SignalSell, SignalHold} {
		n := c.Consensus.Votes.Count(s)
		switch {
		case n > top:
			winner, top, tied = s, n, false
		case n == top:
			tied = true
		}
	}
	if tied {
		winner = SignalHold
	}
	c.Consensus.Signal = winner
	c.Consensus.Tied = tied
	c.Consensus.Strength = float64(top) / float64(total)

	if best, ok := pickBest(results, false); ok {
		c.Best = &best
	}

	agree := top
	switch {
	case c.Consensus.Strength > 0.7:
		c.Recommendation = fmt.Sprintf("Strong %s consensus: %d of %d strategies agree", winner, agree, total)
	case c.Consensus.Strength > 0.5:
		c.Recommendation = fmt.Sprintf("Moderate %s consensus: %d of %d strategies agree", winner, agree, total)
	case c.Best != nil:
		c.Recommendation = fmt.Sprintf("Mixed signals; best strategy %s suggests %s (confidence %.2f)",
			c.Best.Name, c.Best.Result.Signal, c.Best.Result.Confidence)
	}
	return c
}

// pickBest returns the highest-confidence result; ties go to the
// alphabetically first name.
func pickBest(results map[string]Result, preferDirectional bool) (Pick, bool) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	find := func(directionalOnly bool) (Pick, bool) {
		var (
			best  Pick
			found bool
		)
		for _, name := range names {
			r := results[name]
			if directionalOnly && r.Signal == SignalHold {
				continue
			}
			if !found || r.Confidence > best.Result.Confidence {
				best, found = Pick{Name: name, Result: r}, true
			}
		}
		return best, found
	}

	if preferDirectional {
		if p, ok := find(true); ok {
			return p, true
		}
	}
	return find(false)
}
