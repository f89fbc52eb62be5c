package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/exchange-core/internal/domain"
)

func newOrder(id int64, side domain.Side, price, qty int64) *domain.Order {
	return &domain.Order{
		OrderID:  id,
		UserID:   1,
		Symbol:   "AAPL",
		Side:     side,
		Quantity: qty,
		Price:    price,
	}
}

func ptr(v int64) *int64 { return &v }

func TestInsert(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.Insert(newOrder(1, domain.SideSell, 10010, 1000))

	assert.True(t, ob.SellBook.HasOrders())
	assert.Equal(t, int64(10010), ob.SellBook.BestPrice())
	assert.Len(t, ob.OrderMap, 1)

	head, ok := ob.PeekBest(domain.SideSell)
	require.True(t, ok)
	assert.Equal(t, int64(1), head.OrderID)
	assert.Equal(t, int64(1000), head.Quantity)
}

func TestPeekBest_Empty(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, ok := ob.PeekBest(domain.SideBuy)
	assert.False(t, ok)
	_, ok = ob.PeekBest(domain.SideSell)
	assert.False(t, ok)
}

func TestBestPriceTracking(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.Insert(newOrder(1, domain.SideBuy, 9990, 100))
	ob.Insert(newOrder(2, domain.SideBuy, 10000, 100))
	ob.Insert(newOrder(3, domain.SideBuy, 9980, 100))

	// Best bid = highest buy price
	assert.Equal(t, int64(10000), ob.BuyBook.BestPrice())

	ob.Insert(newOrder(4, domain.SideSell, 10010, 100))
	ob.Insert(newOrder(5, domain.SideSell, 10020, 100))

	// Best ask = lowest sell price
	assert.Equal(t, int64(10010), ob.SellBook.BestPrice())
}

func TestPeekBest_FIFO(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.Insert(newOrder(1, domain.SideSell, 10010, 100))
	ob.Insert(newOrder(2, domain.SideSell, 10010, 200))

	head, ok := ob.PeekBest(domain.SideSell)
	require.True(t, ok)
	assert.Equal(t, int64(1), head.OrderID) // earliest arrival first
}

func TestReduceOrRemoveHead_Partial(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideSell, 10010, 1000))

	ob.ReduceOrRemoveHead(domain.SideSell, 200)

	head, ok := ob.PeekBest(domain.SideSell)
	require.True(t, ok)
	assert.Equal(t, int64(800), head.Quantity)
	assert.Len(t, ob.OrderMap, 1)
}

func TestReduceOrRemoveHead_FullRemovesOrderAndLevel(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideSell, 10010, 100))
	ob.Insert(newOrder(2, domain.SideSell, 10020, 200))

	ob.ReduceOrRemoveHead(domain.SideSell, 100)

	assert.NotContains(t, ob.SellBook.LimitMap, int64(10010))
	assert.Equal(t, int64(10020), ob.SellBook.BestPrice())
	assert.NotContains(t, ob.OrderMap, int64(1))
	assert.Contains(t, ob.OrderMap, int64(2))
}

func TestReduceOrRemoveHead_OverfillPanics(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideSell, 10010, 100))

	assert.Panics(t, func() {
		ob.ReduceOrRemoveHead(domain.SideSell, 101)
	})
}

func TestReduceOrRemoveHead_EmptySidePanics(t *testing.T) {
	ob := NewOrderBook("AAPL")

	assert.Panics(t, func() {
		ob.ReduceOrRemoveHead(domain.SideBuy, 1)
	})
}

func TestAmend_QuantityKeepsQueuePosition(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideBuy, 10000, 10))
	ob.Insert(newOrder(2, domain.SideBuy, 10000, 20))

	ok := ob.Amend(1, 1, domain.AmendFields{Quantity: ptr(5)})
	require.True(t, ok)

	head, found := ob.PeekBest(domain.SideBuy)
	require.True(t, found)
	assert.Equal(t, int64(1), head.OrderID) // still at the head of the level
	assert.Equal(t, int64(5), head.Quantity)
	assert.Equal(t, int64(25), ob.BuyBook.LimitMap[10000].TotalVolume)
}

func TestAmend_PriceMovesToNewLevelTail(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideSell, 10020, 100))
	ob.Insert(newOrder(2, domain.SideSell, 10010, 200))

	// Order 1 improves to the existing 10010 level; it joins behind order 2.
	ok := ob.Amend(1, 1, domain.AmendFields{Price: ptr(10010)})
	require.True(t, ok)

	assert.NotContains(t, ob.SellBook.LimitMap, int64(10020))

	snap := ob.SideSnapshot(domain.SideSell)
	require.Len(t, snap, 2)
	assert.Equal(t, int64(2), snap[0].OrderID)
	assert.Equal(t, int64(1), snap[1].OrderID)
	assert.Equal(t, int64(10010), snap[1].Price)
}

func TestAmend_PriceAndQuantity(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideBuy, 10000, 10))

	ok := ob.Amend(1, 1, domain.AmendFields{Price: ptr(10100), Quantity: ptr(15)})
	require.True(t, ok)

	head, found := ob.PeekBest(domain.SideBuy)
	require.True(t, found)
	assert.Equal(t, int64(10100), head.Price)
	assert.Equal(t, int64(15), head.Quantity)
	assert.Equal(t, int64(15), ob.BuyBook.LimitMap[10100].TotalVolume)
}

func TestAmend_NotFound(t *testing.T) {
	ob := NewOrderBook("AAPL")
	assert.False(t, ob.Amend(42, 1, domain.AmendFields{Quantity: ptr(5)}))
}

func TestAmend_WrongOwner(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideBuy, 10000, 10))

	assert.False(t, ob.Amend(1, 99, domain.AmendFields{Quantity: ptr(5)}))

	head, _ := ob.PeekBest(domain.SideBuy)
	assert.Equal(t, int64(10), head.Quantity) // untouched
}

func TestCancel(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideSell, 10010, 1000))

	require.True(t, ob.Cancel(1, 1))
	assert.False(t, ob.SellBook.HasOrders())
	assert.Empty(t, ob.OrderMap)
}

func TestCancel_NotFound(t *testing.T) {
	ob := NewOrderBook("AAPL")
	assert.False(t, ob.Cancel(42, 1))
}

func TestCancel_MiddleOfLevel(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideSell, 10010, 100))
	ob.Insert(newOrder(2, domain.SideSell, 10010, 200))
	ob.Insert(newOrder(3, domain.SideSell, 10010, 300))

	require.True(t, ob.Cancel(2, 1))

	snap := ob.SideSnapshot(domain.SideSell)
	require.Len(t, snap, 2)
	assert.Equal(t, int64(1), snap[0].OrderID)
	assert.Equal(t, int64(3), snap[1].OrderID)
	assert.Equal(t, int64(400), ob.SellBook.LimitMap[10010].TotalVolume)
}

func TestSideSnapshot_PriorityOrder(t *testing.T) {
	ob := NewOrderBook("AAPL")

	// Two buy levels, two orders each; best level is the highest price.
	ob.Insert(newOrder(1, domain.SideBuy, 9990, 100))
	ob.Insert(newOrder(2, domain.SideBuy, 10000, 100))
	ob.Insert(newOrder(3, domain.SideBuy, 10000, 100))
	ob.Insert(newOrder(4, domain.SideBuy, 9990, 100))

	snap := ob.SideSnapshot(domain.SideBuy)
	require.Len(t, snap, 4)
	assert.Equal(t, []int64{2, 3, 1, 4}, []int64{
		snap[0].OrderID, snap[1].OrderID, snap[2].OrderID, snap[3].OrderID,
	})

	// Sell side: best level is the lowest price.
	ob.Insert(newOrder(5, domain.SideSell, 10020, 100))
	ob.Insert(newOrder(6, domain.SideSell, 10010, 100))

	asks := ob.SideSnapshot(domain.SideSell)
	require.Len(t, asks, 2)
	assert.Equal(t, int64(6), asks[0].OrderID)
	assert.Equal(t, int64(5), asks[1].OrderID)
}

func TestSnapshot_IsACopy(t *testing.T) {
	ob := NewOrderBook("AAPL")
	ob.Insert(newOrder(1, domain.SideBuy, 10000, 10))

	snap := ob.Snapshot()
	snap.Buy[0].Quantity = 999

	head, _ := ob.PeekBest(domain.SideBuy)
	assert.Equal(t, int64(10), head.Quantity)
}
