package model

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a request handed to an OrderSink.
type Order struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"` // reference price; 0 = market
	Strategy string  `json:"strategy,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Notional returns quantity × price.
func (o Order) Notional() float64 { return o.Quantity * o.Price }

// OrderAck is the sink's acknowledgement of an order.
type OrderAck struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"` // FILLED, REJECTED, ERROR
	FillPrice float64   `json:"fill_price"`
	FillQty   float64   `json:"fill_qty"`
	Slippage  float64   `json:"slippage"`
	Message   string    `json:"message,omitempty"`
	FilledAt  time.Time `json:"filled_at"`
}
