package orderbook

import (
	"container/list"
	"fmt"
	"sort"

	"github.com/nathanyu/exchange-core/internal/domain"
)

// orderEntry maps an order to its linked list element for O(1) amend/cancel.
type orderEntry struct {
	order   *domain.Order
	element *list.Element
	level   *bookLevel
}

// bookLevel is a price level on one side of the book.
// It holds a doubly-linked list of orders at this price (FIFO).
type bookLevel struct {
	Price       int64
	TotalVolume int64
	Orders      *list.List // of *domain.Order
}

// Book represents one side (buy or sell) of an order book.
type Book struct {
	Side      domain.Side
	LimitMap  map[int64]*bookLevel // price -> level
	bestPrice int64                // best bid (highest buy) or best ask (lowest sell)
	hasOrders bool
}

// NewBook creates a new order book side.
func NewBook(side domain.Side) *Book {
	return &Book{
		Side:     side,
		LimitMap: make(map[int64]*bookLevel),
	}
}

// BestPrice returns the best price on this side, or 0 if empty.
func (b *Book) BestPrice() int64 {
	if !b.hasOrders {
		return 0
	}
	return b.bestPrice
}

// HasOrders returns whether this side has any resting orders.
func (b *Book) HasOrders() bool {
	return b.hasOrders
}

// addOrder appends an order to the tail of its price level's list.
func (b *Book) addOrder(order *domain.Order) (*bookLevel, *list.Element) {
	level, exists := b.LimitMap[order.Price]
	if !exists {
		level = &bookLevel{
			Price:  order.Price,
			Orders: list.New(),
		}
		b.LimitMap[order.Price] = level
	}

	level.TotalVolume += order.Quantity
	elem := level.Orders.PushBack(order)

	b.refreshBestPrice()
	return level, elem
}

// removeOrder removes an order from its price level, dropping the level if
// it empties.
func (b *Book) removeOrder(entry *orderEntry) {
	level := entry.level
	level.Orders.Remove(entry.element)
	level.TotalVolume -= entry.order.Quantity

	if level.Orders.Len() == 0 {
		delete(b.LimitMap, level.Price)
	}

	b.refreshBestPrice()
}

// refreshBestPrice recalculates the best price.
func (b *Book) refreshBestPrice() {
	if len(b.LimitMap) == 0 {
		b.hasOrders = false
		b.bestPrice = 0
		return
	}

	b.hasOrders = true
	if b.Side == domain.SideBuy {
		// Best bid = highest price
		best := int64(0)
		for price := range b.LimitMap {
			if price > best {
				best = price
			}
		}
		b.bestPrice = best
	} else {
		// Best ask = lowest price
		best := int64(1<<62 - 1)
		for price := range b.LimitMap {
			if price < best {
				best = price
			}
		}
		b.bestPrice = best
	}
}

// sortedPrices returns this side's prices in best-to-worst order.
func (b *Book) sortedPrices() []int64 {
	prices := make([]int64, 0, len(b.LimitMap))
	for price := range b.LimitMap {
		prices = append(prices, price)
	}
	if b.Side == domain.SideBuy {
		sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	} else {
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	}
	return prices
}

// OrderBook holds the full two-sided book for a single symbol.
type OrderBook struct {
	Symbol   string
	BuyBook  *Book
	SellBook *Book
	OrderMap map[int64]*orderEntry // orderID -> entry; always agrees with the books
}

// NewOrderBook creates a new order book for a symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol:   symbol,
		BuyBook:  NewBook(domain.SideBuy),
		SellBook: NewBook(domain.SideSell),
		OrderMap: make(map[int64]*orderEntry),
	}
}

func (ob *OrderBook) side(s domain.Side) *Book {
	if s == domain.SideBuy {
		return ob.BuyBook
	}
	return ob.SellBook
}

// Insert appends a resting order to the tail of its price level, creating
// the level if absent.
func (ob *OrderBook) Insert(order *domain.Order) {
	book := ob.side(order.Side)
	level, elem := book.addOrder(order)
	ob.OrderMap[order.OrderID] = &orderEntry{
		order:   order,
		element: elem,
		level:   level,
	}
}

// PeekBest returns a copy of the order at the head of the best non-empty
// level on the given side. ok is false if the side has no resting orders.
func (ob *OrderBook) PeekBest(side domain.Side) (domain.Order, bool) {
	book := ob.side(side)
	if !book.HasOrders() {
		return domain.Order{}, false
	}
	level := book.LimitMap[book.BestPrice()]
	head := level.Orders.Front().Value.(*domain.Order)
	return *head, true
}

// ReduceOrRemoveHead decreases the head order's quantity on the given side
// by filledQty, removing the order (and its level, if emptied) when it hits
// zero. filledQty exceeding the head's quantity is a logic error in the
// matching loop, not a reachable input state, so it panics.
func (ob *OrderBook) ReduceOrRemoveHead(side domain.Side, filledQty int64) {
	book := ob.side(side)
	if !book.HasOrders() {
		panic(fmt.Sprintf("orderbook %s: reduce head on empty %s side", ob.Symbol, side))
	}

	level := book.LimitMap[book.BestPrice()]
	front := level.Orders.Front()
	head := front.Value.(*domain.Order)

	if filledQty > head.Quantity {
		panic(fmt.Sprintf("orderbook %s: fill %d exceeds head quantity %d (order %d)",
			ob.Symbol, filledQty, head.Quantity, head.OrderID))
	}

	head.Quantity -= filledQty
	level.TotalVolume -= filledQty

	if head.Quantity == 0 {
		level.Orders.Remove(front)
		delete(ob.OrderMap, head.OrderID)
		if level.Orders.Len() == 0 {
			delete(book.LimitMap, level.Price)
		}
		book.refreshBestPrice()
	}
}

// Find returns the resting order with the given ID if it exists and is
// owned by userID.
func (ob *OrderBook) Find(orderID, userID int64) (domain.Order, bool) {
	entry, exists := ob.OrderMap[orderID]
	if !exists || entry.order.UserID != userID {
		return domain.Order{}, false
	}
	return *entry.order, true
}

// Amend applies the provided fields to a resting order. A quantity change
// is applied in place and keeps the order's queue position; a price change
// moves the order to the tail of the new price level, since a level only
// holds orders at its own price. Returns false if no resting order matches
// orderID and userID.
func (ob *OrderBook) Amend(orderID, userID int64, fields domain.AmendFields) bool {
	entry, exists := ob.OrderMap[orderID]
	if !exists || entry.order.UserID != userID {
		return false
	}

	book := ob.side(entry.order.Side)

	if fields.Quantity != nil {
		delta := *fields.Quantity - entry.order.Quantity
		entry.order.Quantity = *fields.Quantity
		entry.level.TotalVolume += delta
	}

	if fields.Price != nil && *fields.Price != entry.order.Price {
		book.removeOrder(entry)
		entry.order.Price = *fields.Price
		level, elem := book.addOrder(entry.order)
		entry.level = level
		entry.element = elem
	}

	return true
}

// Cancel removes a resting order. Returns false if no resting order matches
// orderID and userID.
func (ob *OrderBook) Cancel(orderID, userID int64) bool {
	entry, exists := ob.OrderMap[orderID]
	if !exists || entry.order.UserID != userID {
		return false
	}

	ob.side(entry.order.Side).removeOrder(entry)
	delete(ob.OrderMap, orderID)
	return true
}

// Depth returns the number of resting orders on one side.
func (ob *OrderBook) Depth(side domain.Side) int {
	n := 0
	for _, level := range ob.side(side).LimitMap {
		n += level.Orders.Len()
	}
	return n
}

// SideSnapshot returns copies of one side's resting orders in priority
// order: best price level first, FIFO within a level.
func (ob *OrderBook) SideSnapshot(side domain.Side) domain.SideSnapshot {
	book := ob.side(side)
	out := make(domain.SideSnapshot, 0, len(ob.OrderMap))
	for _, price := range book.sortedPrices() {
		level := book.LimitMap[price]
		for e := level.Orders.Front(); e != nil; e = e.Next() {
			out = append(out, *e.Value.(*domain.Order))
		}
	}
	return out
}

// Snapshot returns a point-in-time copy of the whole book.
func (ob *OrderBook) Snapshot() domain.BookSnapshot {
	return domain.BookSnapshot{
		Symbol: ob.Symbol,
		Buy:    ob.SideSnapshot(domain.SideBuy),
		Sell:   ob.SideSnapshot(domain.SideSell),
	}
}
