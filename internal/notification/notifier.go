// Package notification delivers trading alerts (fills, risk rejections,
// degraded market data) to log, webhook and Telegram backends.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Symbol  string         `json:"symbol,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Time    time.Time      `json:"ts"`
}

// fieldLines renders Fields as sorted "key: value" lines.
func (a Alert) fieldLines() []string {
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s: %v", k, a.Fields[k])
	}
	return lines
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts; it is always installed.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	msg := alert.Message
	if len(alert.Fields) > 0 {
		msg += " (" + strings.Join(alert.fieldLines(), ", ") + ")"
	}
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, msg)
	return nil
}

// Fanout sends every alert to all backends and joins their errors.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, alert Alert) error {
	if alert.Time.IsZero() {
		alert.Time = time.Now().UTC()
	}
	var errs []error
	for _, n := range f {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrThrottled is returned when an alert was dropped by Throttle.
var ErrThrottled = errors.New("notification throttled")

// Throttled drops alerts beyond a rate so a flapping condition cannot
// flood a chat. Critical alerts always pass.
type Throttled struct {
	next    Notifier
	limiter *rate.Limiter
}

// Throttle wraps next with a limit of perMinute alerts and the given burst.
func Throttle(next Notifier, perMinute float64, burst int) *Throttled {
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
	}
}

func (t *Throttled) Send(ctx context.Context, alert Alert) error {
	if alert.Level != AlertCritical && !t.limiter.Allow() {
		return ErrThrottled
	}
	return t.next.Send(ctx, alert)
}
