package domain

import "time"

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order represents a resting limit order in the book.
// Prices are in cents (int64) to avoid floating-point issues.
// Quantity is the open (unfilled) quantity; matching and amends are the
// only things that change it.
type Order struct {
	OrderID    int64     `json:"order_id"`
	UserID     int64     `json:"user_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"order_type"`
	Quantity   int64     `json:"quantity"`
	Price      int64     `json:"price"` // in cents, e.g. 10010 = $100.10
	CreatedAt  time.Time `json:"created_at"`
	SequenceID uint64    `json:"sequence_id"`
}

// Trade represents an executed match. Immutable once created.
// Price is always the resting (maker) order's price.
type Trade struct {
	TradeID    string    `json:"trade_id"`
	BuyerID    int64     `json:"buyer_id"`
	SellerID   int64     `json:"seller_id"`
	Symbol     string    `json:"symbol"`
	Price      int64     `json:"price"`
	Quantity   int64     `json:"quantity"`
	Timestamp  time.Time `json:"timestamp"`
	SequenceID uint64    `json:"sequence_id"`
}

// Notional returns the cash value of the trade in cents.
func (t *Trade) Notional() int64 {
	return t.Price * t.Quantity
}

// EventKind is the action type of an inbound order event.
type EventKind string

const (
	EventNew    EventKind = "new"
	EventAmend  EventKind = "amend"
	EventCancel EventKind = "cancel"
)

// AmendFields carries the optional fields of an amend event.
// Nil means "leave unchanged"; present values are strictly positive.
type AmendFields struct {
	Price    *int64 `json:"price,omitempty"`
	Quantity *int64 `json:"quantity,omitempty"`
}

// Empty reports whether the amend changes nothing.
func (f AmendFields) Empty() bool {
	return f.Price == nil && f.Quantity == nil
}

// OrderEvent is the decoded, validated form of an inbound message.
// Exactly one variant applies depending on Kind:
//   - EventNew:    Order is set
//   - EventAmend:  OrderID, UserID and Fields are set
//   - EventCancel: OrderID and UserID are set
type OrderEvent struct {
	Kind    EventKind
	Order   *Order
	OrderID int64
	UserID  int64
	Fields  AmendFields
}

// SideSnapshot is a point-in-time copy of one side of a book, listed in
// priority order: best price level first, FIFO within a level.
type SideSnapshot []Order

// BookSnapshot is a point-in-time copy of one symbol's book.
type BookSnapshot struct {
	Symbol string       `json:"symbol"`
	Buy    SideSnapshot `json:"buy"`
	Sell   SideSnapshot `json:"sell"`
}

// Balance is a user's cash balance in cents. Mutated only by settlement,
// as paired buyer/seller deltas.
type Balance struct {
	UserID int64 `json:"user_id"`
	Cash   int64 `json:"cash"`
}
