package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/is42day/binance-trading-agent-sub000/internal/breaker"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	MarketDataOK   bool      `json:"market_data_ok"`
	LastSignalTime time.Time `json:"last_signal_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Strategies     int       `json:"strategies"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	breakers []*breaker.Breaker
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetMarketDataOK(v bool) {
	h.mu.Lock()
	h.MarketDataOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSignalTime(t time.Time) {
	h.mu.Lock()
	h.LastSignalTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStrategies(n int) {
	h.mu.Lock()
	h.Strategies = n
	h.mu.Unlock()
}

// AddBreaker reports b's stats on /healthz. An open breaker degrades the
// status.
func (h *HealthStatus) AddBreaker(b *breaker.Breaker) {
	h.mu.Lock()
	h.breakers = append(h.breakers, b)
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may
// be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	breakers := make([]breaker.Stats, 0, len(h.breakers))
	tripped := false
	for _, b := range h.breakers {
		st := b.Stats()
		tripped = tripped || st.State != breaker.Closed.String()
		breakers = append(breakers, st)
	}

	redisDown := h.RedisEnabled && !h.RedisConnected
	if !h.MarketDataOK || redisDown || !h.SQLiteOK || tripped {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.MarketDataOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	signalAge := ""
	if !h.LastSignalTime.IsZero() {
		signalAge = time.Since(h.LastSignalTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string          `json:"status"`
		Uptime          string          `json:"uptime"`
		MarketDataOK    bool            `json:"market_data_ok"`
		LastSignalTime  string          `json:"last_signal_time"`
		SignalAge       string          `json:"signal_age"`
		RedisEnabled    bool            `json:"redis_enabled"`
		RedisConnected  bool            `json:"redis_connected"`
		RedisLatencyMs  float64         `json:"redis_latency_ms"`
		SQLiteOK        bool            `json:"sqlite_ok"`
		SQLiteLatencyMs float64         `json:"sqlite_latency_ms"`
		Strategies      int             `json:"strategies"`
		Breakers        []breaker.Stats `json:"breakers"`
		LastCheckAt     string          `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		MarketDataOK:    h.MarketDataOK,
		LastSignalTime:  h.LastSignalTime.Format(time.RFC3339),
		SignalAge:       signalAge,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Strategies:      h.Strategies,
		Breakers:        breakers,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
