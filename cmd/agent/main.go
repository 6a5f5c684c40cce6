// cmd/agent runs the trading agent: it polls Binance klines, generates
// strategy signals, paper-trades them under risk limits and serves the
// HTTP API with a live WebSocket stream.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/is42day/binance-trading-agent-sub000/config"
	"github.com/is42day/binance-trading-agent-sub000/internal/agent"
	"github.com/is42day/binance-trading-agent-sub000/internal/api"
	"github.com/is42day/binance-trading-agent-sub000/internal/breaker"
	"github.com/is42day/binance-trading-agent-sub000/internal/execution"
	"github.com/is42day/binance-trading-agent-sub000/internal/gateway"
	"github.com/is42day/binance-trading-agent-sub000/internal/logger"
	"github.com/is42day/binance-trading-agent-sub000/internal/marketdata/binance"
	"github.com/is42day/binance-trading-agent-sub000/internal/metrics"
	"github.com/is42day/binance-trading-agent-sub000/internal/notification"
	"github.com/is42day/binance-trading-agent-sub000/internal/portfolio"
	redisstore "github.com/is42day/binance-trading-agent-sub000/internal/store/redis"
	sqlitestore "github.com/is42day/binance-trading-agent-sub000/internal/store/sqlite"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
	"github.com/is42day/binance-trading-agent-sub000/internal/trader"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[agent] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[agent] %v", err)
	}
	slogger := logger.Init("agent", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	health.SetRedisEnabled(cfg.RedisEnabled())

	// ---- SQLite: performance archive + registry snapshots ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath: cfg.SQLitePath,
		OnCommit: func(n int, took time.Duration) {
			prom.SQLiteCommitDur.Observe(took.Seconds())
		},
	})
	if err != nil {
		log.Fatalf("[agent] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)

	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[agent] sqlite reader init failed: %v", err)
	}
	defer sqlReader.Close()

	recorder := sqlitestore.NewRecorder(4096, func() { prom.SQLiteDroppedRecords.Inc() })
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sqlWriter.Run(ctx, recorder.C())
	}()

	// ---- Strategies ----
	manager := restoreRegistry(sqlReader, cfg.StrategiesFile,
		strategy.WithLogger(slogger),
		strategy.WithObserver(prom),
		strategy.WithObserver(recorder),
	)
	health.SetStrategies(manager.Len())

	// ---- Market data ----
	binanceBreaker := breaker.New(breaker.Config{
		Name:        "binance",
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		IsFailure:   binance.UpstreamFailure,
	})
	binanceBreaker.OnStateChange(prom.BreakerChanged)
	binanceBreaker.OnStateChange(logBreaker)
	health.AddBreaker(binanceBreaker)

	client := binance.NewClient(
		binance.WithBaseURL(cfg.BinanceBaseURL),
		binance.WithRateLimit(cfg.BinanceRateRPS, int(cfg.BinanceRateRPS)),
		binance.WithBreaker(binanceBreaker),
		binance.WithErrorHook(prom.MarketDataError),
	)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		log.Printf("[agent] WARNING: binance ping failed: %v (signals degrade until it recovers)", err)
	} else {
		health.SetMarketDataOK(true)
	}
	pingCancel()

	ag := agent.New(manager, client,
		agent.WithInterval(cfg.CandleInterval),
		agent.WithLimit(cfg.CandleLimit),
	)
	if err := ag.SetStrategy(cfg.DefaultStrategy); err != nil {
		log.Printf("[agent] WARNING: %v, keeping %s", err, ag.CurrentStrategy())
	}
	if _, ok := manager.Get(ag.CurrentStrategy()); !ok {
		if names := manager.Names(); len(names) > 0 {
			_ = ag.SetStrategy(names[0])
			log.Printf("[agent] restored registry lacks the current strategy, using %s", names[0])
		}
	}

	// ---- Paper execution, portfolio, risk ----
	journal, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[agent] journal init failed: %v", err)
	}
	defer journal.Close()
	executor := execution.NewExecutor(execution.NewPaperExecutor(cfg.SlippageBps), journal)

	pf := portfolio.New()
	risk := portfolio.NewRiskManager(portfolio.RiskLimits{
		MinConfidence:       cfg.MinConfidence,
		MaxPositionNotional: cfg.MaxPositionNotional,
		MaxOpenPositions:    cfg.MaxOpenPositions,
		MaxDailyLoss:        cfg.MaxDailyLoss,
		MaxDrawdownPct:      cfg.MaxDrawdownPct,
	}, pf, cfg.InitialEquity)
	prom.Equity.Set(cfg.InitialEquity)

	// ---- Redis fan-out (optional) ----
	var (
		rdb       *goredis.Client
		publisher trader.Publisher
		signals   api.SignalStore
	)
	if cfg.RedisEnabled() {
		redisWriter, err := redisstore.New(redisstore.WriterConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			OnPublish: func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) },
		})
		if err != nil {
			log.Printf("[agent] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer redisWriter.Close()
			redisBreaker := breaker.New(breaker.Config{Name: "redis", MaxFailures: 5, Cooldown: 10 * time.Second})
			redisBreaker.OnStateChange(prom.BreakerChanged)
			redisBreaker.OnStateChange(logBreaker)
			health.AddBreaker(redisBreaker)
			buffered := redisstore.NewBufferedWriter(ctx, redisWriter, redisBreaker, 1000)
			rdb = redisWriter.Client()
			publisher = buffered
			signals = redisstore.NewReader(redisWriter)
			log.Println("[agent] redis writer ready")
		}
	}
	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)

	// ---- WebSocket hub ----
	hub := gateway.NewHub(1024)
	hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	defer hub.Close()

	// ---- Alerts ----
	fanout := notification.Fanout{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		fanout = append(fanout, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		fanout = append(fanout, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notifier := notification.Throttle(fanout, 20, 5)

	// ---- Trader ----
	svc := trader.New(trader.Config{
		Symbols:      cfg.Symbols,
		PollInterval: cfg.PollInterval,
		OrderQty:     cfg.OrderQty,
		DryRun:       cfg.DryRun,
	}, ag, executor, pf, risk,
		trader.WithMetrics(prom),
		trader.WithHealth(health),
		trader.WithPublisher(publisher),
		trader.WithBroadcaster(hub),
		trader.WithNotifier(notifier),
		trader.WithLogger(slogger),
	)
	go svc.Run(ctx)

	// ---- HTTP API ----
	deps := api.Deps{
		Agent:     ag,
		Health:    health,
		Metrics:   metrics.Handler(prometheus.DefaultGatherer),
		Stream:    hub,
		Journal:   journal,
		History:   sqlReader,
		Signals:   signals,
		Portfolio: pf,
		Risk:      risk,
		OnRegistryChange: func(export []byte) {
			health.SetStrategies(manager.Len())
			if err := sqlWriter.SaveSnapshot(export); err != nil {
				log.Printf("[agent] snapshot save failed: %v", err)
			}
		},
		RateRPS:   cfg.APIRateRPS,
		RateBurst: int(cfg.APIRateRPS * 2.5),
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[agent] http server: %v", err)
		}
	}()

	log.Println("[agent] ╔══════════════════════════════════════════════════════════════╗")
	log.Println("[agent] ║  Binance Trading Agent                                       ║")
	log.Println("[agent] ║                                                              ║")
	log.Println("[agent] ║  [Klines] → [Strategies] → [Risk] → [Paper] → [Redis/WS]     ║")
	log.Printf("[agent] ║  Symbols:  %-50v║", cfg.Symbols)
	log.Printf("[agent] ║  Strategy: %-50s║", ag.CurrentStrategy())
	log.Printf("[agent] ║  HTTP:     %-50s║", cfg.HTTPAddr)
	log.Printf("[agent] ║  Dry run:  %-50v║", cfg.DryRun)
	log.Println("[agent] ╚══════════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[agent] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[agent] http shutdown: %v", err)
	}

	<-writerDone
	if export, err := manager.Export(); err != nil {
		log.Printf("[agent] final export failed: %v", err)
	} else if err := sqlWriter.SaveSnapshot(export); err != nil {
		log.Printf("[agent] final snapshot failed: %v", err)
	}
	log.Println("[agent] shutdown complete")
}

func logBreaker(name string, from, to breaker.State) {
	log.Printf("[agent] %s circuit breaker %s -> %s", name, from, to)
}

type snapshotReader interface {
	ReadLatestSnapshot() ([]byte, error)
}

// restoreRegistry builds the manager from the newest SQLite snapshot alone,
// so strategies deleted before a restart stay deleted. Without a usable
// snapshot it seeds the defaults and imports the strategies file on top.
func restoreRegistry(r snapshotReader, file string, opts ...strategy.Option) *strategy.Manager {
	snap, err := r.ReadLatestSnapshot()
	if err != nil {
		log.Printf("[agent] snapshot read failed: %v", err)
	}
	if snap != nil {
		m := strategy.NewManager(append(opts, strategy.WithoutDefaults())...)
		rep, err := m.Import(snap)
		if err == nil && rep.Imported > 0 {
			log.Printf("[agent] restored %d strategies from snapshot (%d failed)", rep.Imported, rep.Failed)
			return m
		}
		log.Printf("[agent] snapshot unusable (imported=%d err=%v), seeding defaults", rep.Imported, err)
	}

	m := strategy.NewManager(opts...)
	if file == "" {
		return m
	}
	rep, err := m.LoadFile(file)
	if err != nil {
		log.Printf("[agent] strategies file %s: %v", file, err)
		return m
	}
	log.Printf("[agent] loaded %d strategies from %s (%d failed)", rep.Imported, file, rep.Failed)
	return m
}
