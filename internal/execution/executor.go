// Package execution places orders produced by the trader and records the
// resulting fills.
//
// The Executor hands orders to an OrderSink (the paper executor in this
// repo) and journals every fill.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

// Order statuses reported in acknowledgements.
const (
	StatusFilled   = "FILLED"
	StatusRejected = "REJECTED"
	StatusError    = "ERROR"
)

// ErrInvalidOrder is returned for orders with no symbol, side or quantity.
var ErrInvalidOrder = errors.New("invalid order")

// Executor places orders through a sink and journals the fills.
type Executor struct {
	sink    model.OrderSink
	journal *Journal
}

// NewExecutor creates an executor. journal may be nil.
func NewExecutor(sink model.OrderSink, journal *Journal) *Executor {
	return &Executor{sink: sink, journal: journal}
}

// Execute validates and places one order. Filled orders are journaled;
// a journal failure is logged but does not undo the fill.
func (e *Executor) Execute(ctx context.Context, order model.Order) (model.OrderAck, error) {
	if err := Validate(order); err != nil {
		return model.OrderAck{Status: StatusRejected, Message: err.Error()}, err
	}

	ack, err := e.sink.PlaceOrder(ctx, order)
	if err != nil {
		log.Printf("[executor] %s %s qty=%.6f failed: %v", order.Side, order.Symbol, order.Quantity, err)
		return ack, fmt.Errorf("place %s %s: %w", order.Side, order.Symbol, err)
	}

	if ack.Status == StatusFilled && e.journal != nil {
		if jerr := e.journal.RecordFill(FillFrom(order, ack)); jerr != nil {
			log.Printf("[executor] journal %s: %v", ack.OrderID, jerr)
		}
	}
	return ack, nil
}

// Validate checks the fields every sink needs.
func Validate(o model.Order) error {
	switch {
	case o.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	case o.Side != model.SideBuy && o.Side != model.SideSell:
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	case !(o.Quantity > 0):
		return fmt.Errorf("%w: quantity %v", ErrInvalidOrder, o.Quantity)
	case o.Price < 0:
		return fmt.Errorf("%w: price %v", ErrInvalidOrder, o.Price)
	}
	return nil
}
