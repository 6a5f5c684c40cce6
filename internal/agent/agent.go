// Package agent adapts the strategy manager to callers that want one
// signal per symbol in a plain, lower-cased output shape.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

const (
	DefaultStrategy   = "combined_default"
	DefaultInterval   = "1h"
	DefaultLimit      = 50
	DefaultMinCandles = 20
)

// Output modes reported in Metadata["mode"].
const (
	ModeDemo     = "demo"
	ModeDegraded = "degraded"
	ModeLive     = "live"
)

// ErrNotEnoughCandles is returned by Compare when the source returns a
// window too short to analyse.
var ErrNotEnoughCandles = errors.New("not enough candles")

// Output is the signal shape handed to the trader, the API and publishers.
type Output struct {
	Symbol      string             `json:"symbol"`
	Strategy    string             `json:"strategy"`
	Signal      string             `json:"signal"`
	Confidence  float64            `json:"confidence"`
	PriceTarget *float64           `json:"price_target,omitempty"`
	StopLoss    *float64           `json:"stop_loss,omitempty"`
	TakeProfit  *float64           `json:"take_profit,omitempty"`
	Indicators  map[string]float64 `json:"indicators"`
	Metadata    map[string]any     `json:"metadata"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Type parses the lower-case signal back into a strategy.SignalType.
func (o Output) Type() strategy.SignalType {
	s, _ := strategy.ParseSignalType(o.Signal)
	return s
}

// Price returns the last close recorded in metadata, or 0.
func (o Output) Price() float64 {
	p, _ := o.Metadata["current_price"].(float64)
	return p
}

// Option configures an Agent.
type Option func(*Agent)

// WithInterval sets the candle interval requested from the source.
func WithInterval(interval string) Option {
	return func(a *Agent) { a.interval = interval }
}

// WithLimit sets how many candles are fetched per signal.
func WithLimit(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithMinCandles sets the shortest window the agent will analyse.
func WithMinCandles(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.minCandles = n
		}
	}
}

// WithStrategy sets the initial current strategy name.
func WithStrategy(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.current = name
		}
	}
}

// Agent produces signals for symbols from a candle source and a manager.
type Agent struct {
	manager *strategy.Manager
	source  model.CandleSource

	interval   string
	limit      int
	minCandles int

	mu      sync.RWMutex
	current string
}

// New creates an Agent. A nil source puts the agent in demo mode.
func New(manager *strategy.Manager, source model.CandleSource, opts ...Option) *Agent {
	a := &Agent{
		manager:    manager,
		source:     source,
		interval:   DefaultInterval,
		limit:      DefaultLimit,
		minCandles: DefaultMinCandles,
		current:    DefaultStrategy,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Manager returns the underlying strategy manager.
func (a *Agent) Manager() *strategy.Manager { return a.manager }

// Interval returns the candle interval the agent requests.
func (a *Agent) Interval() string { return a.interval }

// CurrentStrategy returns the name used when no override is given.
func (a *Agent) CurrentStrategy() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// SetStrategy changes the current strategy. Unknown names are rejected.
func (a *Agent) SetStrategy(name string) error {
	if _, ok := a.manager.Get(name); !ok {
		return fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, name)
	}
	a.mu.Lock()
	a.current = name
	a.mu.Unlock()
	log.Printf("[agent] current strategy set to %s", name)
	return nil
}

// GenerateSignal analyses the latest candles for symbol with override, or
// the current strategy when override is empty. It never fails: missing
// data and unknown strategies come back as hold outputs.
func (a *Agent) GenerateSignal(ctx context.Context, symbol, override string) Output {
	name := override
	if name == "" {
		name = a.CurrentStrategy()
	}

	candles, early := a.window(ctx, symbol, name)
	if early != nil {
		return *early
	}
	res, ok := a.manager.AnalyzeWith(name, candles, symbol)
	if !ok {
		return unknown(symbol, name)
	}
	return FromResult(symbol, name, res)
}

// SignalAndCompare runs every strategy once on a single fetched window and
// returns the current strategy's output along with the comparison, so each
// strategy logs one performance record per call. The comparison is nil when
// the output is a demo or degraded one.
func (a *Agent) SignalAndCompare(ctx context.Context, symbol string) (Output, *strategy.Comparison) {
	name := a.CurrentStrategy()
	candles, early := a.window(ctx, symbol, name)
	if early != nil {
		return *early, nil
	}
	cmp := a.manager.Compare(candles, symbol)
	res, ok := cmp.Results[name]
	if !ok {
		return unknown(symbol, name), &cmp
	}
	return FromResult(symbol, name, res), &cmp
}

// window fetches the analysis window, or returns the output to report
// instead when there is no usable data.
func (a *Agent) window(ctx context.Context, symbol, name string) ([]model.Candle, *Output) {
	if a.source == nil {
		out := Output{
			Symbol:     symbol,
			Strategy:   name,
			Signal:     strategy.SignalBuy.Lower(),
			Confidence: 0.8,
			Indicators: map[string]float64{},
			Metadata: map[string]any{
				"mode":   ModeDemo,
				"reason": "no market data source configured",
			},
			Timestamp: time.Now().UTC(),
		}
		return nil, &out
	}

	candles, err := a.source.FetchCandles(ctx, symbol, a.interval, a.limit)
	if err != nil {
		log.Printf("[agent] fetch %s %s failed: %v", symbol, a.interval, err)
		out := degraded(symbol, name, fmt.Sprintf("market data unavailable: %v", err))
		return nil, &out
	}
	if len(candles) < a.minCandles {
		out := degraded(symbol, name,
			fmt.Sprintf("insufficient market data: got %d candles, need %d", len(candles), a.minCandles))
		return nil, &out
	}
	return candles, nil
}

// Compare fetches the latest candles for symbol and compares every
// registered strategy on them.
func (a *Agent) Compare(ctx context.Context, symbol string) (strategy.Comparison, error) {
	if a.source == nil {
		return strategy.Comparison{}, errors.New("no market data source configured")
	}
	candles, err := a.source.FetchCandles(ctx, symbol, a.interval, a.limit)
	if err != nil {
		return strategy.Comparison{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if len(candles) < a.minCandles {
		return strategy.Comparison{}, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughCandles, len(candles), a.minCandles)
	}
	return a.manager.Compare(candles, symbol), nil
}

// FromResult converts a strategy result to the output shape.
func FromResult(symbol, name string, res strategy.Result) Output {
	meta := make(map[string]any, len(res.Metadata)+1)
	for k, v := range res.Metadata {
		meta[k] = v
	}
	if _, ok := meta["mode"]; !ok {
		meta["mode"] = ModeLive
	}
	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Output{
		Symbol:      symbol,
		Strategy:    name,
		Signal:      res.Signal.Lower(),
		Confidence:  res.Confidence,
		PriceTarget: res.PriceTarget,
		StopLoss:    res.StopLoss,
		TakeProfit:  res.TakeProfit,
		Indicators:  res.Indicators,
		Metadata:    meta,
		Timestamp:   ts,
	}
}

func unknown(symbol, name string) Output {
	return Output{
		Symbol:     symbol,
		Strategy:   name,
		Signal:     strategy.SignalHold.Lower(),
		Indicators: map[string]float64{},
		Metadata: map[string]any{
			"mode":  ModeDegraded,
			"error": fmt.Sprintf("%v: %s", strategy.ErrUnknownStrategy, name),
		},
		Timestamp: time.Now().UTC(),
	}
}

func degraded(symbol, name, reason string) Output {
	return Output{
		Symbol:     symbol,
		Strategy:   name,
		Signal:     strategy.SignalHold.Lower(),
		Confidence: 0.5,
		Indicators: map[string]float64{},
		Metadata: map[string]any{
			"mode":   ModeDegraded,
			"reason": reason,
		},
		Timestamp: time.Now().UTC(),
	}
}
