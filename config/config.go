package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data
	BinanceBaseURL  string
	Symbols         []string
	CandleInterval  string
	CandleLimit     int
	PollInterval    time.Duration
	BinanceRateRPS  float64
	DefaultStrategy string
	StrategiesFile  string // optional YAML registry imported at start-up

	// Infrastructure
	SQLitePath    string
	RedisAddr     string // empty disables Redis fan-out
	RedisPassword string
	RedisDB       int
	HTTPAddr      string
	APIRateRPS    float64
	LogLevel      string

	// Trading
	DryRun        bool // signals only, no paper orders
	OrderQty      float64
	SlippageBps   float64
	InitialEquity float64

	// Risk limits (zero disables a limit)
	MinConfidence       float64
	MaxPositionNotional float64
	MaxOpenPositions    int
	MaxDailyLoss        float64
	MaxDrawdownPct      float64

	// Alerts
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads environment variables, after the given .env files (default
// ".env") have been applied, and validates the result. Variables already
// set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	// Ignore error so the agent still starts when .env is missing.
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		BinanceBaseURL:  getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		Symbols:         splitAndTrim(getEnv("BINANCE_SYMBOLS", "BTCUSDT")),
		CandleInterval:  getEnv("CANDLE_INTERVAL", "1h"),
		CandleLimit:     getEnvInt("CANDLE_LIMIT", 50),
		PollInterval:    time.Duration(getEnvInt("POLL_INTERVAL_SEC", 60)) * time.Second,
		BinanceRateRPS:  getEnvFloat("BINANCE_RATE_LIMIT_RPS", 10),
		DefaultStrategy: getEnv("DEFAULT_STRATEGY", "combined_default"),
		StrategiesFile:  getEnv("STRATEGIES_FILE", ""),

		SQLitePath:    getEnv("SQLITE_PATH", "data/agent.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		APIRateRPS:    getEnvFloat("API_RATE_LIMIT_RPS", 20),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DryRun:        getEnvBool("DRY_RUN", false),
		OrderQty:      getEnvFloat("ORDER_QTY", 0.001),
		SlippageBps:   getEnvFloat("SLIPPAGE_BPS", 5),
		InitialEquity: getEnvFloat("INITIAL_EQUITY", 10000),

		MinConfidence:       getEnvFloat("MIN_CONFIDENCE", 0.6),
		MaxPositionNotional: getEnvFloat("MAX_POSITION_NOTIONAL", 1000),
		MaxOpenPositions:    getEnvInt("MAX_OPEN_POSITIONS", 3),
		MaxDailyLoss:        getEnvFloat("MAX_DAILY_LOSS", 200),
		MaxDrawdownPct:      getEnvFloat("MAX_DRAWDOWN_PCT", 10),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("BINANCE_SYMBOLS is empty"))
	}
	if c.CandleLimit < 1 || c.CandleLimit > 1000 {
		errs = append(errs, fmt.Errorf("CANDLE_LIMIT %d out of range [1, 1000]", c.CandleLimit))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_SEC must be positive"))
	}
	if c.OrderQty <= 0 {
		errs = append(errs, errors.New("ORDER_QTY must be positive"))
	}
	if c.InitialEquity <= 0 {
		errs = append(errs, errors.New("INITIAL_EQUITY must be positive"))
	}
	if c.SlippageBps < 0 {
		errs = append(errs, errors.New("SLIPPAGE_BPS must not be negative"))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("MIN_CONFIDENCE %.2f out of range [0, 1]", c.MinConfidence))
	}
	if c.MaxDrawdownPct < 0 || c.MaxDrawdownPct > 100 {
		errs = append(errs, fmt.Errorf("MAX_DRAWDOWN_PCT %.2f out of range [0, 100]", c.MaxDrawdownPct))
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RedisEnabled reports whether signals are fanned out through Redis.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

// splitAndTrim splits a comma list, upper-cases symbols and drops blanks.
func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
