// Package settlement applies matched trades to durable state: one atomic
// write per trade covering the trade record, the buyer's cash debit and
// the seller's cash credit. The matching path treats settlement as
// fire-and-report: a failed write is an accounting incident surfaced for
// reconciliation, never a reason to reopen a consumed order.
package settlement

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/nathanyu/exchange-core/internal/domain"
)

// Sink settles one matched trade as a single unit.
type Sink interface {
	Settle(trade *domain.Trade) error
}

// keys: t:<8-byte-seq> -> trade JSON, b:<8-byte-user> -> int64 cents
func tradeKey(seq uint64) []byte {
	k := make([]byte, 2+8)
	copy(k, "t:")
	binary.BigEndian.PutUint64(k[2:], seq)
	return k
}

func balanceKey(userID int64) []byte {
	k := make([]byte, 2+8)
	copy(k, "b:")
	binary.BigEndian.PutUint64(k[2:], uint64(userID))
	return k
}

func encodeCents(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeCents(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("balance value has %d bytes, want 8", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Store is the pebble-backed settlement sink. Balances are cached in
// memory for reads; the cache is updated only after the batch commits, so
// it never gets ahead of disk.
type Store struct {
	db *pebble.DB

	mu       sync.RWMutex
	balances map[int64]int64 // userID -> cash in cents
}

// Open opens (or creates) the settlement store at path and warms the
// balance cache from disk.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open settlement store: %w", err)
	}

	s := &Store{
		db:       db,
		balances: make(map[int64]int64),
	}
	if err := s.loadBalances(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadBalances() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("b:"),
		UpperBound: []byte("b;"),
	})
	if err != nil {
		return fmt.Errorf("iterate balances: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != 2+8 {
			return fmt.Errorf("malformed balance key %q", key)
		}
		userID := int64(binary.BigEndian.Uint64(key[2:]))
		cash, err := decodeCents(iter.Value())
		if err != nil {
			return fmt.Errorf("balance for user %d: %w", userID, err)
		}
		s.balances[userID] = cash
	}
	return iter.Error()
}

// Settle appends the trade record and applies the paired cash deltas
// (debit buyer, credit seller) in one synced batch. Either all three
// writes land or none do; on error no state, cached or durable, changes.
func (s *Store) Settle(trade *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notional := trade.Notional()
	buyerCash := s.balances[trade.BuyerID] - notional
	sellerCash := s.balances[trade.SellerID] + notional

	record, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", trade.TradeID, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(tradeKey(trade.SequenceID), record, nil); err != nil {
		return fmt.Errorf("stage trade %s: %w", trade.TradeID, err)
	}
	if err := batch.Set(balanceKey(trade.BuyerID), encodeCents(buyerCash), nil); err != nil {
		return fmt.Errorf("stage buyer balance: %w", err)
	}
	if err := batch.Set(balanceKey(trade.SellerID), encodeCents(sellerCash), nil); err != nil {
		return fmt.Errorf("stage seller balance: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit settlement for trade %s: %w", trade.TradeID, err)
	}

	s.balances[trade.BuyerID] = buyerCash
	s.balances[trade.SellerID] = sellerCash
	return nil
}

// Balance returns a user's cash balance. ok is false for users with no
// settlement history or deposits.
func (s *Store) Balance(userID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cash, ok := s.balances[userID]
	return cash, ok
}

// Deposit credits a user's cash balance. Used to seed accounts; trades
// settle exclusively through Settle.
func (s *Store) Deposit(userID, cents int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cash := s.balances[userID] + cents
	if err := s.db.Set(balanceKey(userID), encodeCents(cash), pebble.Sync); err != nil {
		return 0, fmt.Errorf("deposit for user %d: %w", userID, err)
	}
	s.balances[userID] = cash
	return cash, nil
}

// RecentTrades returns up to limit settled trades, newest first,
// optionally filtered by symbol (empty matches all).
func (s *Store) RecentTrades(symbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		return nil, nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("t:"),
		UpperBound: []byte("t;"),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	defer iter.Close()

	var trades []*domain.Trade
	for valid := iter.Last(); valid && len(trades) < limit; valid = iter.Prev() {
		var trade domain.Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			return nil, fmt.Errorf("unmarshal trade record: %w", err)
		}
		if symbol != "" && trade.Symbol != symbol {
			continue
		}
		trades = append(trades, &trade)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return trades, nil
}
