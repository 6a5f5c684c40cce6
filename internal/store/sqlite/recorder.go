package sqlite

import (
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

// Recorder is a strategy.Observer that queues performance records for a
// Writer. Records are dropped, never blocked on, when the queue is full.
type Recorder struct {
	ch     chan strategy.PerformanceRecord
	onDrop func()
}

// NewRecorder creates a recorder with a queue of size buf. onDrop may be nil.
func NewRecorder(buf int, onDrop func()) *Recorder {
	return &Recorder{ch: make(chan strategy.PerformanceRecord, buf), onDrop: onDrop}
}

// C returns the queue to pass to Writer.Run.
func (r *Recorder) C() <-chan strategy.PerformanceRecord { return r.ch }

// OnAnalysis implements strategy.Observer.
func (r *Recorder) OnAnalysis(rec strategy.PerformanceRecord, _ time.Duration) {
	select {
	case r.ch <- rec:
	default:
		if r.onDrop != nil {
			r.onDrop()
		}
	}
}

// Close ends the queue so Writer.Run flushes and returns. No analysis may
// be recorded afterwards.
func (r *Recorder) Close() { close(r.ch) }
