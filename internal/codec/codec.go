// Package codec translates between the transport's JSON wire format and
// the engine's typed order events. Nothing that fails to decode into one
// of the known variants reaches the matching logic.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nathanyu/exchange-core/internal/domain"
)

// wireEvent is the superset of fields across all inbound event kinds.
type wireEvent struct {
	Kind     string              `json:"kind"`
	OrderID  int64               `json:"order_id"`
	UserID   int64               `json:"user_id"`
	Symbol   string              `json:"symbol"`
	Side     string              `json:"order_type"`
	Quantity int64               `json:"quantity"`
	Price    int64               `json:"price"`
	Fields   *domain.AmendFields `json:"fields"`
}

// DecodeEvent parses one inbound message into a typed order event.
// An absent kind defaults to "new" for compatibility with older producers.
// Unknown kinds and missing or non-positive required fields are decode
// errors; the caller drops the message and keeps consuming.
func DecodeEvent(data []byte) (*domain.OrderEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	kind := domain.EventKind(w.Kind)
	if w.Kind == "" {
		kind = domain.EventNew
	}

	switch kind {
	case domain.EventNew:
		return decodeNew(&w)
	case domain.EventAmend:
		return decodeAmend(&w)
	case domain.EventCancel:
		return decodeCancel(&w)
	default:
		return nil, fmt.Errorf("unknown event kind %q", w.Kind)
	}
}

func decodeNew(w *wireEvent) (*domain.OrderEvent, error) {
	if w.Symbol == "" {
		return nil, fmt.Errorf("new order %d: missing symbol", w.OrderID)
	}
	side := domain.Side(w.Side)
	if !side.Valid() {
		return nil, fmt.Errorf("new order %d: invalid order_type %q", w.OrderID, w.Side)
	}
	if w.Quantity <= 0 {
		return nil, fmt.Errorf("new order %d: quantity must be positive, got %d", w.OrderID, w.Quantity)
	}
	if w.Price <= 0 {
		return nil, fmt.Errorf("new order %d: price must be positive, got %d", w.OrderID, w.Price)
	}

	return &domain.OrderEvent{
		Kind: domain.EventNew,
		Order: &domain.Order{
			OrderID:   w.OrderID,
			UserID:    w.UserID,
			Symbol:    strings.ToUpper(w.Symbol),
			Side:      side,
			Quantity:  w.Quantity,
			Price:     w.Price,
			CreatedAt: time.Now(),
		},
	}, nil
}

func decodeAmend(w *wireEvent) (*domain.OrderEvent, error) {
	fields := domain.AmendFields{}
	if w.Fields != nil {
		fields = *w.Fields
	}
	if fields.Price != nil && *fields.Price <= 0 {
		return nil, fmt.Errorf("amend order %d: price must be positive, got %d", w.OrderID, *fields.Price)
	}
	if fields.Quantity != nil && *fields.Quantity <= 0 {
		return nil, fmt.Errorf("amend order %d: quantity must be positive, got %d", w.OrderID, *fields.Quantity)
	}

	// An amend with neither field set is the producer's mistake; it decodes
	// fine and is a no-op downstream.
	return &domain.OrderEvent{
		Kind:    domain.EventAmend,
		OrderID: w.OrderID,
		UserID:  w.UserID,
		Fields:  fields,
	}, nil
}

func decodeCancel(w *wireEvent) (*domain.OrderEvent, error) {
	return &domain.OrderEvent{
		Kind:    domain.EventCancel,
		OrderID: w.OrderID,
		UserID:  w.UserID,
	}, nil
}

// tradeTick is the outbound broadcast payload, one per executed trade.
type tradeTick struct {
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

// EncodeTrade serializes a trade into the broadcast tick format with an
// ISO-8601 UTC timestamp.
func EncodeTrade(trade *domain.Trade) ([]byte, error) {
	return json.Marshal(tradeTick{
		Symbol:    trade.Symbol,
		Price:     trade.Price,
		Quantity:  trade.Quantity,
		Timestamp: trade.Timestamp.UTC().Format(time.RFC3339),
	})
}
