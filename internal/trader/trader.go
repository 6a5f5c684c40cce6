// Package trader runs the polling loop that turns strategy signals into
// paper trades.
//
// Every cycle, for each symbol:
//
//	signal → comparison → publish (Redis, WebSocket) → risk check
//	       → paper execute + journal → portfolio/equity update → notify
package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/agent"
	"github.com/is42day/binance-trading-agent-sub000/internal/execution"
	"github.com/is42day/binance-trading-agent-sub000/internal/logger"
	"github.com/is42day/binance-trading-agent-sub000/internal/metrics"
	"github.com/is42day/binance-trading-agent-sub000/internal/model"
	"github.com/is42day/binance-trading-agent-sub000/internal/notification"
	"github.com/is42day/binance-trading-agent-sub000/internal/portfolio"
	"github.com/is42day/binance-trading-agent-sub000/internal/store/redis"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

// Message kinds, shared by the Redis and WebSocket fan-out.
const (
	KindSignal     = "signal"
	KindComparison = "comparison"
	KindTrade      = "trade"
	KindRejection  = "rejection"
)

// Publisher is satisfied by *redis.BufferedWriter.
type Publisher interface {
	Publish(msg redis.Message) error
}

// Broadcaster is satisfied by *gateway.Hub.
type Broadcaster interface {
	Broadcast(kind, symbol string, data []byte) int64
}

// Config controls one trader.
type Config struct {
	Symbols      []string
	PollInterval time.Duration
	OrderQty     float64
	DryRun       bool // publish signals but never place orders
	SkipCompare  bool // do not run the all-strategy comparison each cycle
}

// CycleResult describes what happened for one symbol in one cycle.
type CycleResult struct {
	Symbol     string               `json:"symbol"`
	Output     agent.Output         `json:"output"`
	Comparison *strategy.Comparison `json:"comparison,omitempty"`
	Order      *model.Order         `json:"order,omitempty"`
	Ack        *model.OrderAck      `json:"ack,omitempty"`
	Rejected   string               `json:"rejected,omitempty"`
	Err        error                `json:"-"`
}

// Rejection is the payload published when risk blocks an order.
type Rejection struct {
	Order      model.Order `json:"order"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
}

// TradeEvent is the payload published after a fill.
type TradeEvent struct {
	Order       model.Order          `json:"order"`
	Ack         model.OrderAck       `json:"ack"`
	RealizedPnL float64              `json:"realized_pnl"`
	Risk        portfolio.RiskStatus `json:"risk"`
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records cycle, order and rejection metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithHealth keeps market-data health and the last signal time current.
func WithHealth(h *metrics.HealthStatus) Option { return func(s *Service) { s.health = h } }

// WithPublisher fans signals out through Redis.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithBroadcaster pushes signals to WebSocket clients.
func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.hub = b } }

// WithNotifier sends alerts on fills, rejections and degraded data.
func WithNotifier(n notification.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// Service is the trading loop.
type Service struct {
	cfg       Config
	agent     *agent.Agent
	executor  *execution.Executor
	portfolio *portfolio.Portfolio
	risk      *portfolio.RiskManager

	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
	publisher Publisher
	hub       Broadcaster
	notifier  notification.Notifier
	log       *slog.Logger

	day int // UTC year-day of the last daily P&L reset
}

// New creates a trader.
func New(cfg Config, ag *agent.Agent, exec *execution.Executor, pf *portfolio.Portfolio,
	risk *portfolio.RiskManager, opts ...Option) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	s := &Service{
		cfg:       cfg,
		agent:     ag,
		executor:  exec,
		portfolio: pf,
		risk:      risk,
		log:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		day:       time.Now().UTC().YearDay(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks immediately and then every PollInterval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("trader started", "symbols", s.cfg.Symbols, "poll", s.cfg.PollInterval.String(), "dry_run", s.cfg.DryRun)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("trader stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one cycle over every symbol.
func (s *Service) Tick(ctx context.Context) []CycleResult {
	start := time.Now()
	s.maybeResetDaily(start)

	results := make([]CycleResult, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.processSymbol(ctx, sym))
	}

	if s.metrics != nil {
		s.metrics.CycleDur.Observe(time.Since(start).Seconds())
		s.metrics.Equity.Set(s.risk.GetStatus().Equity)
	}
	return results
}

func (s *Service) maybeResetDaily(now time.Time) {
	if d := now.UTC().YearDay(); d != s.day {
		s.day = d
		s.risk.ResetDaily()
		s.log.Info("daily P&L reset")
	}
}

func (s *Service) processSymbol(ctx context.Context, symbol string) CycleResult {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, time.Now()))
	res := CycleResult{Symbol: symbol}

	// 1. signal, plus the comparison from the same window
	var (
		out agent.Output
		cmp *strategy.Comparison
	)
	if s.cfg.SkipCompare {
		out = s.agent.GenerateSignal(ctx, symbol, "")
	} else {
		out, cmp = s.agent.SignalAndCompare(ctx, symbol)
	}
	res.Output = out
	mode, _ := out.Metadata["mode"].(string)
	s.log.Info("signal", append(logger.LogWithTrace(ctx),
		"symbol", symbol, "strategy", out.Strategy, "signal", out.Signal,
		"confidence", out.Confidence, "mode", mode)...)

	if s.metrics != nil {
		s.metrics.SignalsTotal.WithLabelValues(symbol, out.Signal).Inc()
	}
	if s.health != nil {
		s.health.SetMarketDataOK(mode != agent.ModeDegraded)
		s.health.SetLastSignalTime(out.Timestamp)
	}
	s.publish(symbol, KindSignal, out)

	if mode == agent.ModeDegraded {
		reason, _ := out.Metadata["reason"].(string)
		s.notify(ctx, notification.Alert{
			Level: notification.AlertWarning, Title: "Market data degraded",
			Message: reason, Symbol: symbol,
		})
		return res
	}

	// 2. comparison
	if cmp != nil {
		res.Comparison = cmp
		if s.metrics != nil {
			s.metrics.ConsensusStrength.WithLabelValues(symbol).Set(cmp.Consensus.Strength)
		}
		s.publish(symbol, KindComparison, *cmp)
	}

	price := out.Price()
	if price > 0 {
		s.portfolio.UpdatePrice(symbol, price)
	}

	side, ok := sideOf(out.Type())
	if !ok || mode != agent.ModeLive || s.cfg.DryRun {
		return res
	}
	if price <= 0 {
		res.Err = fmt.Errorf("no reference price for %s", symbol)
		return res
	}

	// 3. risk
	order := model.Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: s.cfg.OrderQty,
		Price:    price,
		Strategy: out.Strategy,
		Reason:   fmt.Sprintf("%s %.2f", out.Signal, out.Confidence),
	}
	if side == model.SideSell {
		if pos, open := s.portfolio.Position(symbol); open {
			order.Quantity = math.Min(order.Quantity, pos.Qty)
		}
	}
	res.Order = &order

	if allowed, reason := s.risk.CanTrade(order, out.Confidence); !allowed {
		res.Rejected = reason
		s.log.Info("order rejected by risk", append(logger.LogWithTrace(ctx),
			"symbol", symbol, "side", string(side), "reason", reason)...)
		if s.metrics != nil {
			s.metrics.RiskRejections.WithLabelValues(symbol).Inc()
		}
		s.publish(symbol, KindRejection, Rejection{Order: order, Confidence: out.Confidence, Reason: reason})
		s.notify(ctx, notification.Alert{
			Level: notification.AlertWarning, Title: string(side) + " rejected",
			Message: reason, Symbol: symbol,
			Fields: map[string]any{"confidence": out.Confidence, "strategy": out.Strategy},
		})
		return res
	}

	// 4. execute
	ack, err := s.executor.Execute(ctx, order)
	if s.metrics != nil {
		status := ack.Status
		if status == "" {
			status = execution.StatusError
		}
		s.metrics.OrdersTotal.WithLabelValues(string(side), status).Inc()
	}
	if err != nil {
		res.Err = err
		s.log.Error("order failed", append(logger.LogWithTrace(ctx), "symbol", symbol, "error", err)...)
		s.notify(ctx, notification.Alert{
			Level: notification.AlertCritical, Title: string(side) + " failed",
			Message: err.Error(), Symbol: symbol,
		})
		return res
	}
	res.Ack = &ack

	// 5. book the fill
	pnl := s.portfolio.ApplyFill(portfolio.Trade{
		Symbol:    symbol,
		Side:      side,
		Qty:       ack.FillQty,
		Price:     ack.FillPrice,
		Strategy:  out.Strategy,
		Timestamp: ack.FilledAt,
	})
	s.risk.RecordPnL(pnl)
	status := s.risk.GetStatus()
	if s.metrics != nil {
		s.metrics.Equity.Set(status.Equity)
	}

	s.publish(symbol, KindTrade, TradeEvent{Order: order, Ack: ack, RealizedPnL: pnl, Risk: status})
	s.notify(ctx, notification.Alert{
		Level: notification.AlertInfo, Title: string(side) + " filled",
		Message: fmt.Sprintf("%s %.6f @ %.2f", ack.OrderID, ack.FillQty, ack.FillPrice),
		Symbol:  symbol,
		Fields:  map[string]any{"strategy": out.Strategy, "realized_pnl": pnl, "equity": status.Equity},
	})
	return res
}

func sideOf(sig strategy.SignalType) (model.Side, bool) {
	switch sig {
	case strategy.SignalBuy:
		return model.SideBuy, true
	case strategy.SignalSell:
		return model.SideSell, true
	}
	return "", false
}

// publish marshals v once and hands it to Redis and the WebSocket hub.
func (s *Service) publish(symbol, kind string, v any) {
	if s.publisher == nil && s.hub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal payload", "kind", kind, "error", err)
		return
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(redis.Message{Kind: kind, Symbol: symbol, Data: data}); err != nil {
			s.log.Warn("redis publish failed", "kind", kind, "symbol", symbol, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(kind, symbol, data)
	}
}

func (s *Service) notify(ctx context.Context, a notification.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, a); err != nil {
		s.log.Debug("alert not delivered", "title", a.Title, "error", err)
	}
}
