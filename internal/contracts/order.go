package contracts

import "time"

// Order represents an execution order passed to the execution venue.
type Order struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycle_id"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Qty       int       `json:"qty"`
	Price     float64   `json:"price"`      // 0 for market order
	OrderType OrderType `json:"order_type"` // MARKET or LIMIT
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents market or limit order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Status represents order status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusFilled    Status = "FILLED"
	StatusCanceled  Status = "CANCELED"
	StatusRejected  Status = "REJECTED"
)

// IsMarketOrder checks if the order is a market order.
func (o *Order) IsMarketOrder() bool {
	return o.OrderType == OrderTypeMarket
}

// IsFilled checks if the order is filled.
func (o *Order) IsFilled() bool {
	return o.Status == StatusFilled
}

// OrderResult is the execution venue's response to a submission.
type OrderResult struct {
	OrderID   string  `json:"order_id"`
	Status    Status  `json:"status"`
	FillPrice float64 `json:"fill_price"`
	Message   string  `json:"message,omitempty"`
}

// FillEvent is one fill notification from the venue's event stream.
type FillEvent struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Qty       int       `json:"qty"`
	FillPrice float64   `json:"fill_price"`
	FilledAt  time.Time `json:"filled_at"`
}
