package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// Reader reads back what the Writer published.
type Reader struct {
	client *goredis.Client
}

// NewReader shares the writer's connection pool.
func NewReader(w *Writer) *Reader {
	return &Reader{client: w.client}
}

// Latest returns the newest payload of kind for symbol, or nil if it has
// expired or was never written.
func (r *Reader) Latest(ctx context.Context, kind, symbol string) ([]byte, error) {
	val, err := r.client.Get(ctx, LatestKey(kind, symbol)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", LatestKey(kind, symbol), err)
	}
	return val, nil
}

// Recent returns up to count payloads from the stream, newest first.
func (r *Reader) Recent(ctx context.Context, kind, symbol string, count int64) ([][]byte, error) {
	msgs, err := r.client.XRevRangeN(ctx, StreamKey(kind, symbol), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey(kind, symbol), err)
	}

	out := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		if data, ok := m.Values["data"].(string); ok {
			out = append(out, []byte(data))
		}
	}
	return out, nil
}
