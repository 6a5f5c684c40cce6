package model

import "context"

// ── Collaborator ports ──
// These interfaces decouple the strategy core and the trader loop from the
// concrete exchange, execution and storage implementations.

// CandleSource supplies market data.
type CandleSource interface {
	// FetchCandles returns up to limit candles for symbol at interval,
	// oldest first. Any transport failure is returned as an error.
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// OrderSink accepts orders and acknowledges them.
type OrderSink interface {
	PlaceOrder(ctx context.Context, order Order) (OrderAck, error)
}
