package redis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: a few days of hourly signals per symbol + buffer
	defaultStreamMaxLen = 2000
	defaultLatestTTL    = 30 * time.Minute
)

// Message kinds published by the trader.
const (
	KindSignal     = "signal"
	KindComparison = "comparison"
	KindTrade      = "trade"
)

// Message is one JSON payload for a symbol.
type Message struct {
	Kind   string
	Symbol string
	Data   []byte
}

// LatestKey is the key holding the newest payload of kind for symbol.
func LatestKey(kind, symbol string) string {
	return "agent:" + kind + ":latest:" + strings.ToUpper(symbol)
}

// StreamKey is the capped stream of payloads of kind for symbol.
func StreamKey(kind, symbol string) string {
	return "agent:" + kind + ":" + strings.ToUpper(symbol)
}

// PubSubChannel is where payloads of kind for symbol are published.
func PubSubChannel(kind, symbol string) string {
	return "pub:agent:" + kind + ":" + strings.ToUpper(symbol)
}

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	StreamMaxLen int64         // default 2000
	LatestTTL    time.Duration // default 30m

	// OnPublish, if set, receives the latency of every pipeline.
	OnPublish func(took time.Duration)
}

// Writer publishes trader output to Redis: the latest value per symbol,
// a trimmed stream for history, and a pubsub notification.
type Writer struct {
	client    *goredis.Client
	maxLen    int64
	ttl       time.Duration
	onPublish func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newWriter(client, cfg), nil
}

func newWriter(client *goredis.Client, cfg WriterConfig) *Writer {
	w := &Writer{
		client:    client,
		maxLen:    cfg.StreamMaxLen,
		ttl:       cfg.LatestTTL,
		onPublish: cfg.OnPublish,
	}
	if w.maxLen <= 0 {
		w.maxLen = defaultStreamMaxLen
	}
	if w.ttl <= 0 {
		w.ttl = defaultLatestTTL
	}
	return w
}

// Publish performs the pipelined SET + XADD + PUBLISH for msg.
func (w *Writer) Publish(ctx context.Context, msg Message) error {
	start := time.Now()
	data := string(msg.Data)

	pipe := w.client.Pipeline()

	// SET latest with TTL
	pipe.Set(ctx, LatestKey(msg.Kind, msg.Symbol), data, w.ttl)

	// XADD to stream with auto-trimming
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(msg.Kind, msg.Symbol),
		MaxLen: w.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": data,
		},
	})

	// PUBLISH for real-time subscribers
	pipe.Publish(ctx, PubSubChannel(msg.Kind, msg.Symbol), data)

	_, err := pipe.Exec(ctx)
	if w.onPublish != nil {
		w.onPublish(time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("redis pipeline %s %s: %w", msg.Kind, msg.Symbol, err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
