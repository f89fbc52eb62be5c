package matching

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nathanyu/exchange-core/internal/domain"
	"github.com/nathanyu/exchange-core/internal/orderbook"
)

// Engine owns the per-symbol order books and applies order events against
// them under price-time priority.
//
// Exactly one writer (the sequencer loop) calls Apply; snapshot readers run
// concurrently under the read lock. The lock spans a single event's
// in-memory transition only; settlement and broadcast happen after Apply
// returns, so readers never block on external I/O and never observe a
// partially applied mutation.
type Engine struct {
	mu    sync.RWMutex
	books map[string]*orderbook.OrderBook // symbol -> book, created lazily
}

// NewEngine creates a new matching engine.
func NewEngine() *Engine {
	return &Engine{
		books: make(map[string]*orderbook.OrderBook),
	}
}

// getOrCreateBook returns the book for a symbol, creating it if needed.
// Books are never destroyed during process lifetime.
func (e *Engine) getOrCreateBook(symbol string) *orderbook.OrderBook {
	book, exists := e.books[symbol]
	if !exists {
		book = orderbook.NewOrderBook(symbol)
		e.books[symbol] = book
	}
	return book
}

// Apply processes one decoded order event and returns the trades it
// produced. found is false when an amend or cancel referenced no resting
// order, which is a benign no-op under races with fills, not an error.
func (e *Engine) Apply(event *domain.OrderEvent) (trades []*domain.Trade, found bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch event.Kind {
	case domain.EventNew:
		return e.applyNew(event.Order), true
	case domain.EventAmend:
		return nil, e.applyAmend(event.OrderID, event.UserID, event.Fields)
	case domain.EventCancel:
		return nil, e.applyCancel(event.OrderID, event.UserID)
	default:
		// Codec rejects unknown kinds before they get here.
		return nil, false
	}
}

// applyNew matches the incoming order against the opposite side, best level
// first and FIFO within a level, then rests any remainder at its limit
// price. Trades execute at the resting order's price.
func (e *Engine) applyNew(order *domain.Order) []*domain.Trade {
	book := e.getOrCreateBook(order.Symbol)
	opp := order.Side.Opposite()
	now := time.Now()

	var trades []*domain.Trade
	remaining := order.Quantity

	for remaining > 0 {
		resting, ok := book.PeekBest(opp)
		if !ok {
			break
		}
		if order.Side == domain.SideBuy && order.Price < resting.Price {
			break // buy limit below best ask
		}
		if order.Side == domain.SideSell && order.Price > resting.Price {
			break // sell limit above best bid
		}

		tradeQty := min(remaining, resting.Quantity)

		buyerID, sellerID := order.UserID, resting.UserID
		if order.Side == domain.SideSell {
			buyerID, sellerID = resting.UserID, order.UserID
		}

		trades = append(trades, &domain.Trade{
			TradeID:   uuid.New().String(),
			BuyerID:   buyerID,
			SellerID:  sellerID,
			Symbol:    order.Symbol,
			Price:     resting.Price, // maker's price always wins
			Quantity:  tradeQty,
			Timestamp: now,
		})

		remaining -= tradeQty
		book.ReduceOrRemoveHead(opp, tradeQty)
	}

	if remaining > 0 {
		order.Quantity = remaining
		book.Insert(order)
	}

	return trades
}

// applyAmend locates the resting order across all books and applies the
// amend. Amends never trigger re-matching: an amended order is only
// evaluated against the book by the next crossing incoming order.
func (e *Engine) applyAmend(orderID, userID int64, fields domain.AmendFields) bool {
	for _, book := range e.books {
		if book.Amend(orderID, userID, fields) {
			return true
		}
	}
	return false
}

// applyCancel locates and removes the resting order across all books.
func (e *Engine) applyCancel(orderID, userID int64) bool {
	for _, book := range e.books {
		if book.Cancel(orderID, userID) {
			return true
		}
	}
	return false
}

// Snapshot returns a point-in-time copy of one symbol's book, empty sides
// if the symbol has never traded.
func (e *Engine) Snapshot(symbol string) domain.BookSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	book, exists := e.books[symbol]
	if !exists {
		return domain.BookSnapshot{
			Symbol: symbol,
			Buy:    domain.SideSnapshot{},
			Sell:   domain.SideSnapshot{},
		}
	}
	return book.Snapshot()
}

// SnapshotAll returns point-in-time copies of every book, keyed by symbol.
func (e *Engine) SnapshotAll() map[string]domain.BookSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]domain.BookSnapshot, len(e.books))
	for symbol, book := range e.books {
		out[symbol] = book.Snapshot()
	}
	return out
}

// Depth returns the resting order count for one side of a symbol's book.
func (e *Engine) Depth(symbol string, side domain.Side) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	book, exists := e.books[symbol]
	if !exists {
		return 0
	}
	return book.Depth(side)
}
