package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string      `json:"order_id"`
	Order     model.Order `json:"order"`
	FillPrice float64     `json:"fill_price"`
	FillQty   float64     `json:"fill_qty"`
	Slippage  float64     `json:"slippage"` // price units per unit filled
	FilledAt  time.Time   `json:"filled_at"`
}

// FillFrom builds a Fill from an order and its acknowledgement.
func FillFrom(o model.Order, ack model.OrderAck) Fill {
	return Fill{
		OrderID:   ack.OrderID,
		Order:     o,
		FillPrice: ack.FillPrice,
		FillQty:   ack.FillQty,
		Slippage:  ack.Slippage,
		FilledAt:  ack.FilledAt,
	}
}

// PaperExecutor simulates order execution without touching the exchange.
// It implements model.OrderSink.
type PaperExecutor struct {
	mu    sync.RWMutex
	fills []Fill

	// basis points of slippage (e.g., 5 = 0.05%)
	slippageBps float64
	now         func() time.Time
}

// NewPaperExecutor creates a paper trading executor.
func NewPaperExecutor(slippageBps float64) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]Fill, 0, 128),
		slippageBps: slippageBps,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// PlaceOrder fills the order immediately at its reference price moved
// against the trader by the configured slippage. Orders without a price
// are rejected since there is no book to fill against.
func (p *PaperExecutor) PlaceOrder(ctx context.Context, o model.Order) (model.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderAck{Status: StatusError}, err
	}
	if err := Validate(o); err != nil {
		return model.OrderAck{Status: StatusRejected, Message: err.Error()}, err
	}
	if o.Price == 0 {
		err := fmt.Errorf("%w: paper fills need a reference price", ErrInvalidOrder)
		return model.OrderAck{Status: StatusRejected, Message: err.Error()}, err
	}

	slippage := o.Price * p.slippageBps / 10000
	fillPrice := o.Price + slippage // buy higher
	if o.Side == model.SideSell {
		fillPrice = o.Price - slippage // sell lower
	}

	fill := Fill{
		OrderID:   "PAPER-" + uuid.NewString(),
		Order:     o,
		FillPrice: fillPrice,
		FillQty:   o.Quantity,
		Slippage:  slippage,
		FilledAt:  p.now(),
	}
	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s qty=%.6f price=%.4f (slip=%.4f) order=%s reason=%s",
		o.Side, o.Strategy, o.Symbol, o.Quantity, fillPrice, slippage, fill.OrderID, o.Reason)

	return model.OrderAck{
		OrderID:   fill.OrderID,
		Status:    StatusFilled,
		FillPrice: fillPrice,
		FillQty:   o.Quantity,
		Slippage:  slippage,
		Message:   fmt.Sprintf("paper filled at %.4f", fillPrice),
		FilledAt:  fill.FilledAt,
	}, nil
}
