package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/is42day/binance-trading-agent-sub000/internal/breaker"
)

// Publisher is satisfied by *Writer.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// BufferedWriter wraps a Publisher with a circuit breaker.
// During circuit-open state, messages are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	pub Publisher
	cb  *breaker.Breaker
	ctx context.Context

	mu     sync.Mutex
	buffer []Message
	maxBuf int // max buffered messages before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when a message is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered messages
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Publisher.
func NewBufferedWriter(ctx context.Context, pub Publisher, cb *breaker.Breaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bw := &BufferedWriter{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]Message, 0, 64),
		maxBuf: maxBufferSize,
	}

	cb.OnStateChange(func(_ string, _, to breaker.State) {
		if to == breaker.Closed {
			go bw.flush()
		}
	})

	return bw
}

// Publish sends msg through the circuit breaker.
// If the circuit is open, the message is buffered locally.
func (bw *BufferedWriter) Publish(msg Message) error {
	err := bw.cb.Do(func() error {
		return bw.pub.Publish(bw.ctx, msg)
	})
	if errors.Is(err, breaker.ErrOpen) {
		bw.bufferWrite(msg)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(msg Message) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, msg)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered messages through the underlying publisher.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]Message, 0, 64)
	bw.mu.Unlock()

	flushed := 0
	for _, msg := range toFlush {
		if err := bw.pub.Publish(bw.ctx, msg); err != nil {
			log.Printf("[buffered-writer] replay %s %s: %v", msg.Kind, msg.Symbol, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered messages", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered messages waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
