package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
	"github.com/is42day/binance-trading-agent-sub000/internal/ringbuf"
)

// DefaultHistoryLimit caps each strategy's performance log.
const DefaultHistoryLimit = 1000

var (
	ErrEmptyName       = errors.New("strategy name must not be empty")
	ErrNilStrategy     = errors.New("strategy must not be nil")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Observer is notified after every recorded analysis.
type Observer interface {
	OnAnalysis(rec PerformanceRecord, took time.Duration)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithHistoryLimit overrides the per-strategy performance log capacity.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithObserver registers an analysis observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithoutDefaults skips seeding the default strategies.
func WithoutDefaults() Option {
	return func(m *Manager) { m.seed = false }
}

// Manager owns a named registry of strategies and their performance logs.
// It is safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	history    map[string]*ringbuf.Ring[PerformanceRecord]

	limit     int
	observers []Observer
	log       *slog.Logger
	seed      bool
}

// NewManager creates a manager seeded with the default strategies.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		strategies: make(map[string]Strategy),
		history:    make(map[string]*ringbuf.Ring[PerformanceRecord]),
		limit:      DefaultHistoryLimit,
		log:        slog.Default(),
		seed:       true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.seed {
		m.seedDefaults()
	}
	return m
}

// DefaultStrategies returns the seed configuration, in creation order.
func DefaultStrategies() []NamedConfig {
	return []NamedConfig{
		{Name: "rsi_default", Type: TypeRSI},
		{Name: "macd_default", Type: TypeMACD},
		{Name: "combined_default", Type: TypeCombined},
		{Name: "rsi_aggressive", Type: TypeRSI, Params: Params{
			"overbought": 65.0, "oversold": 35.0, "extreme_overbought": 75.0, "extreme_oversold": 25.0,
		}},
		{Name: "rsi_conservative", Type: TypeRSI, Params: Params{
			"overbought": 75.0, "oversold": 25.0, "extreme_overbought": 85.0, "extreme_oversold": 15.0,
		}},
	}
}

// NamedConfig is a strategy definition ready for Create.
type NamedConfig struct {
	Name   string
	Type   string
	Params Params
}

func (m *Manager) seedDefaults() {
	for _, def := range DefaultStrategies() {
		if err := m.Create(def.Type, def.Name, def.Params); err != nil {
			m.log.Warn("default strategy not seeded", "strategy", def.Name, "error", err)
		}
	}
}

// Register adds s under name, replacing any existing instance. The name's
// performance log survives replacement.
func (m *Manager) Register(name string, s Strategy) error {
	if name == "" {
		return ErrEmptyName
	}
	if s == nil {
		return ErrNilStrategy
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[name] = s
	if _, ok := m.history[name]; !ok {
		m.history[name] = ringbuf.New[PerformanceRecord](m.limit)
	}
	return nil
}

// Create builds a strategy from a type tag and registers it.
func (m *Manager) Create(kind, name string, params Params) error {
	s, err := New(kind, params)
	if err != nil {
		m.log.Warn("strategy creation failed", "strategy", name, "type", kind, "error", err)
		return fmt.Errorf("create %s: %w", name, err)
	}
	return m.Register(name, s)
}

// Get returns the strategy registered under name.
func (m *Manager) Get(name string) (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[name]
	return s, ok
}

// Names returns the registered names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.strategies))
	for name := range m.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered strategies.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.strategies)
}

// Remove deletes a strategy and its performance log.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[name]; !ok {
		return false
	}
	delete(m.strategies, name)
	delete(m.history, name)
	return true
}

// Clear removes every strategy and log.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies = make(map[string]Strategy)
	m.history = make(map[string]*ringbuf.Ring[PerformanceRecord])
}

type entry struct {
	name     string
	strategy Strategy
	log      *ringbuf.Ring[PerformanceRecord]
}

func (m *Manager) lookup(name string) (entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[name]
	if !ok {
		return entry{}, false
	}
	return entry{name: name, strategy: s, log: m.history[name]}, true
}

func (m *Manager) entries() []entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entry, 0, len(m.strategies))
	for name, s := range m.strategies {
		out = append(out, entry{name: name, strategy: s, log: m.history[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// AnalyzeWith runs the named strategy and records the result. The bool is
// false when no strategy has that name. Malformed candles and strategy
// panics come back as HOLD results with the cause in Metadata["error"].
func (m *Manager) AnalyzeWith(name string, candles []model.Candle, symbol string) (Result, bool) {
	e, ok := m.lookup(name)
	if !ok {
		m.log.Debug("analyze: strategy not found", "strategy", name)
		return Result{}, false
	}

	start := time.Now()
	res, err := run(e.strategy, candles, symbol)
	if err != nil {
		res = errorResult(err.Error(), nil)
	}
	m.record(e, res, candles, symbol, time.Since(start))
	return res, true
}

// AnalyzeAll runs every registered strategy concurrently. Strategies that
// fail are logged and left out of the result.
func (m *Manager) AnalyzeAll(candles []model.Candle, symbol string) map[string]Result {
	entries := m.entries()
	results := make(map[string]Result, len(entries))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			start := time.Now()
			res, err := run(e.strategy, candles, symbol)
			if err != nil {
				m.log.Warn("strategy analysis failed", "strategy", e.name, "symbol", symbol, "error", err)
				return
			}
			m.record(e, res, candles, symbol, time.Since(start))
			mu.Lock()
			results[e.name] = res
			mu.Unlock()
		}(e)
	}
	wg.Wait()
	return results
}

// run validates candles and shields the caller from strategy panics.
func run(s Strategy, candles []model.Candle, symbol string) (res Result, err error) {
	if err := model.ValidateCandles(candles); err != nil {
		return Result{}, fmt.Errorf("malformed candles: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Analyze(candles, symbol), nil
}

func (m *Manager) record(e entry, res Result, candles []model.Candle, symbol string, took time.Duration) {
	rec := PerformanceRecord{
		Timestamp:   res.Timestamp,
		Strategy:    e.name,
		Symbol:      symbol,
		Signal:      res.Signal,
		Confidence:  res.Confidence,
		Price:       model.LastClose(candles),
		CandleCount: len(candles),
		Indicators:  res.Indicators,
		Metadata:    res.Metadata,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if e.log != nil {
		e.log.Push(rec)
	}
	for _, o := range m.observers {
		o.OnAnalysis(rec, took)
	}
}
