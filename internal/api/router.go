// Package api exposes the agent over HTTP: strategy management, on-demand
// signals and comparisons, performance history, the trade journal and the
// live WebSocket stream.
package api

import (
	"context"
	"net/http"

	"github.com/is42day/binance-trading-agent-sub000/internal/agent"
	"github.com/is42day/binance-trading-agent-sub000/internal/execution"
	"github.com/is42day/binance-trading-agent-sub000/internal/portfolio"
	"github.com/is42day/binance-trading-agent-sub000/internal/store/sqlite"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

// TradeLister lists journaled fills, newest first.
type TradeLister interface {
	GetTrades(symbol string, limit int) ([]execution.TradeRecord, error)
}

// HistoryReader queries persisted performance records.
type HistoryReader interface {
	ReadHistory(q sqlite.HistoryQuery) ([]strategy.PerformanceRecord, error)
}

// SignalStore reads payloads the trader published to Redis.
type SignalStore interface {
	Latest(ctx context.Context, kind, symbol string) ([]byte, error)
	Recent(ctx context.Context, kind, symbol string, count int64) ([][]byte, error)
}

// Deps are the components the router serves. Agent is required; any
// other nil dependency turns its endpoints off (404) or into 503s.
type Deps struct {
	Agent   *agent.Agent
	Health  http.Handler
	Metrics http.Handler
	Stream  http.Handler

	Journal   TradeLister
	History   HistoryReader
	Signals   SignalStore
	Portfolio *portfolio.Portfolio
	Risk      *portfolio.RiskManager

	// OnRegistryChange receives the exported registry after every
	// create, delete or import.
	OnRegistryChange func(export []byte)

	RateRPS   float64
	RateBurst int
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	s := &server{Deps: d}
	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("GET /healthz", d.Health)
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	if d.Stream != nil {
		mux.Handle("GET /api/v1/stream", d.Stream)
	}

	mux.HandleFunc("GET /api/v1/strategies", s.listStrategies)
	mux.HandleFunc("POST /api/v1/strategies", s.createStrategy)
	mux.HandleFunc("GET /api/v1/strategies/{name}", s.getStrategy)
	mux.HandleFunc("DELETE /api/v1/strategies/{name}", s.deleteStrategy)
	mux.HandleFunc("GET /api/v1/strategy/current", s.currentStrategy)
	mux.HandleFunc("PUT /api/v1/strategy/current", s.setCurrentStrategy)

	mux.HandleFunc("GET /api/v1/signal/{symbol}", s.signal)
	mux.HandleFunc("GET /api/v1/signal/{symbol}/latest", s.latestSignal)
	mux.HandleFunc("GET /api/v1/signal/{symbol}/recent", s.recentSignals)
	mux.HandleFunc("GET /api/v1/compare/{symbol}", s.compare)
	mux.HandleFunc("POST /api/v1/indicators", s.indicators)

	mux.HandleFunc("GET /api/v1/performance", s.performance)
	mux.HandleFunc("GET /api/v1/history/{name}", s.history)
	mux.HandleFunc("GET /api/v1/export", s.export)
	mux.HandleFunc("POST /api/v1/import", s.importStrategies)

	mux.HandleFunc("GET /api/v1/trades", s.trades)
	mux.HandleFunc("GET /api/v1/portfolio", s.portfolio)

	var h http.Handler = mux
	h = RateLimit(d.RateRPS, d.RateBurst)(h)
	h = RequestLogger(h)
	h = RequestID(h)
	return h
}
