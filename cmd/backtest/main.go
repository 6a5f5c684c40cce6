// cmd/backtest walks a window forward over Binance klines, comparing every
// registered strategy at each step, and prints how often each strategy's
// directional calls matched the next candle.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTCUSDT --interval=1h --limit=500 --window=50
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/logger"
	"github.com/is42day/binance-trading-agent-sub000/internal/marketdata/binance"
	"github.com/is42day/binance-trading-agent-sub000/internal/model"
	sqlitestore "github.com/is42day/binance-trading-agent-sub000/internal/store/sqlite"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	symbol := flag.String("symbol", "BTCUSDT", "Binance symbol")
	interval := flag.String("interval", "1h", "Kline interval")
	limit := flag.Int("limit", 500, "Klines to fetch (max 1000)")
	from := flag.String("from", "", "Start time, RFC3339 (default: most recent klines)")
	window := flag.Int("window", 50, "Candles per analysis window")
	step := flag.Int("step", 1, "Candles to advance between windows")
	baseURL := flag.String("base-url", binance.DefaultBaseURL, "Binance REST base URL")
	strategiesFile := flag.String("strategies", "", "YAML registry to import on top of the defaults")
	dbPath := flag.String("db", "", "Archive performance records to this SQLite file")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	slogger := logger.Init("backtest", logger.ParseLevel(*logLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Fetch klines
	client := binance.NewClient(binance.WithBaseURL(*baseURL))
	var start time.Time
	if *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			log.Fatalf("[backtest] invalid --from: %v", err)
		}
		start = t
	}
	klines, err := client.KlinesBetween(ctx, *symbol, *interval, start, time.Time{}, *limit)
	if err != nil {
		log.Fatalf("[backtest] fetch klines: %v", err)
	}
	candles := make([]model.Candle, len(klines))
	for i, k := range klines {
		candles[i] = k.Candle(strings.ToUpper(*symbol))
	}
	if len(candles) < *window {
		log.Fatalf("[backtest] got %d klines, need at least %d", len(candles), *window)
	}

	// Build the registry
	opts := []strategy.Option{strategy.WithLogger(slogger), strategy.WithHistoryLimit(len(candles))}
	var (
		writer     *sqlitestore.Writer
		recorder   *sqlitestore.Recorder
		writerDone chan struct{}
	)
	if *dbPath != "" {
		writer, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("[backtest] sqlite open failed: %v", err)
		}
		defer writer.Close()
		recorder = sqlitestore.NewRecorder(len(candles)*8, func() {
			log.Printf("[backtest] archive queue full, record dropped")
		})
		opts = append(opts, strategy.WithObserver(recorder))
		writerDone = make(chan struct{})
		go func() {
			defer close(writerDone)
			writer.Run(context.Background(), recorder.C())
		}()
	}
	m := strategy.NewManager(opts...)
	if *strategiesFile != "" {
		rep, err := m.LoadFile(*strategiesFile)
		if err != nil {
			log.Fatalf("[backtest] %v", err)
		}
		log.Printf("[backtest] imported %d strategies (%d failed)", rep.Imported, rep.Failed)
	}

	rep := walkForward(ctx, m, candles, strings.ToUpper(*symbol), *window, *step)

	if recorder != nil {
		recorder.Close()
		<-writerDone
	}

	// Per-strategy breakdown
	names := make([]string, 0, len(rep.Strategies))
	for name := range rep.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Printf("  %-20s %5s %5s %5s %8s\n", "STRATEGY", "BUY", "SELL", "HOLD", "HIT%")
	for _, name := range names {
		sc := rep.Strategies[name]
		fmt.Printf("  %-20s %5d %5d %5d %7.1f%%\n",
			name, sc.Votes.Buy, sc.Votes.Sell, sc.Votes.Hold, sc.HitRate()*100)
	}

	// Print summary
	first, last := candles[0].Timestamp, candles[len(candles)-1].Timestamp
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", strings.ToUpper(*symbol))
	fmt.Printf("║  Candles:           %-16d ║\n", len(candles))
	fmt.Printf("║  From:              %-16s ║\n", first.Format("2006-01-02 15:04"))
	fmt.Printf("║  To:                %-16s ║\n", last.Format("2006-01-02 15:04"))
	fmt.Printf("║  Windows:           %-16d ║\n", rep.Windows)
	fmt.Printf("║  Consensus buy:     %-16d ║\n", rep.Consensus.Buy)
	fmt.Printf("║  Consensus sell:    %-16d ║\n", rep.Consensus.Sell)
	fmt.Printf("║  Consensus hold:    %-16d ║\n", rep.Consensus.Hold)
	fmt.Println("╚══════════════════════════════════════╝")
}

// scorecard tallies one strategy's calls over the run.
type scorecard struct {
	Votes       strategy.Votes
	Directional int // buy/sell calls with a following candle
	Hits        int // directional calls the next close agreed with
}

func (s *scorecard) HitRate() float64 {
	if s.Directional == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Directional)
}

type report struct {
	Windows    int
	Consensus  strategy.Votes
	Strategies map[string]*scorecard
}

// walkForward compares every strategy on candles[end-window:end] for each
// end, advancing by step, and scores directional calls against the close
// of candles[end].
func walkForward(ctx context.Context, m *strategy.Manager, candles []model.Candle, symbol string, window, step int) report {
	if step < 1 {
		step = 1
	}
	rep := report{Strategies: make(map[string]*scorecard)}
	for end := window; end <= len(candles); end += step {
		if ctx.Err() != nil {
			log.Printf("[backtest] interrupted after %d windows", rep.Windows)
			break
		}
		win := candles[end-window : end]
		cmp := m.Compare(win, symbol)
		rep.Windows++
		rep.Consensus.Add(cmp.Consensus.Signal)

		cur := model.LastClose(win)
		for name, res := range cmp.Results {
			sc, ok := rep.Strategies[name]
			if !ok {
				sc = &scorecard{}
				rep.Strategies[name] = sc
			}
			sc.Votes.Add(res.Signal)
			if end == len(candles) || res.Signal == strategy.SignalHold {
				continue
			}
			sc.Directional++
			next := candles[end].Close
			if (res.Signal == strategy.SignalBuy && next > cur) || (res.Signal == strategy.SignalSell && next < cur) {
				sc.Hits++
			}
		}
	}
	return rep
}
