package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/exchange-core/internal/domain"
)

func TestDecodeEvent_New(t *testing.T) {
	msg := []byte(`{"kind":"new","order_id":1,"user_id":7,"symbol":"aapl","order_type":"buy","quantity":10,"price":10100}`)

	event, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.EventNew, event.Kind)
	require.NotNil(t, event.Order)
	assert.Equal(t, int64(1), event.Order.OrderID)
	assert.Equal(t, int64(7), event.Order.UserID)
	assert.Equal(t, "AAPL", event.Order.Symbol) // normalized
	assert.Equal(t, domain.SideBuy, event.Order.Side)
	assert.Equal(t, int64(10), event.Order.Quantity)
	assert.Equal(t, int64(10100), event.Order.Price)
	assert.False(t, event.Order.CreatedAt.IsZero())
}

func TestDecodeEvent_AbsentKindDefaultsToNew(t *testing.T) {
	msg := []byte(`{"order_id":2,"user_id":7,"symbol":"MSFT","order_type":"sell","quantity":5,"price":5000}`)

	event, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.EventNew, event.Kind)
	assert.Equal(t, domain.SideSell, event.Order.Side)
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"kind":"replace","order_id":1}`))
	assert.ErrorContains(t, err, "unknown event kind")
}

func TestDecodeEvent_NewValidation(t *testing.T) {
	cases := []struct {
		name string
		msg  string
	}{
		{"missing symbol", `{"kind":"new","order_id":1,"user_id":7,"order_type":"buy","quantity":10,"price":100}`},
		{"invalid side", `{"kind":"new","order_id":1,"user_id":7,"symbol":"AAPL","order_type":"hold","quantity":10,"price":100}`},
		{"zero quantity", `{"kind":"new","order_id":1,"user_id":7,"symbol":"AAPL","order_type":"buy","quantity":0,"price":100}`},
		{"negative price", `{"kind":"new","order_id":1,"user_id":7,"symbol":"AAPL","order_type":"buy","quantity":10,"price":-1}`},
		{"not json", `{{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tc.msg))
			assert.Error(t, err)
		})
	}
}

func TestDecodeEvent_Amend(t *testing.T) {
	msg := []byte(`{"kind":"amend","order_id":3,"user_id":7,"fields":{"price":11800,"quantity":15}}`)

	event, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.EventAmend, event.Kind)
	assert.Equal(t, int64(3), event.OrderID)
	assert.Equal(t, int64(7), event.UserID)
	require.NotNil(t, event.Fields.Price)
	require.NotNil(t, event.Fields.Quantity)
	assert.Equal(t, int64(11800), *event.Fields.Price)
	assert.Equal(t, int64(15), *event.Fields.Quantity)
}

func TestDecodeEvent_AmendPartialFields(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"kind":"amend","order_id":3,"user_id":7,"fields":{"quantity":5}}`))
	require.NoError(t, err)
	assert.Nil(t, event.Fields.Price)
	require.NotNil(t, event.Fields.Quantity)
	assert.Equal(t, int64(5), *event.Fields.Quantity)
}

func TestDecodeEvent_AmendEmptyFieldsIsNoop(t *testing.T) {
	// Rejecting an empty amend is the producer's responsibility; here it
	// just decodes to a change of nothing.
	event, err := DecodeEvent([]byte(`{"kind":"amend","order_id":3,"user_id":7}`))
	require.NoError(t, err)
	assert.True(t, event.Fields.Empty())
}

func TestDecodeEvent_AmendNonPositiveFields(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"kind":"amend","order_id":3,"user_id":7,"fields":{"price":0}}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"kind":"amend","order_id":3,"user_id":7,"fields":{"quantity":-5}}`))
	assert.Error(t, err)
}

func TestDecodeEvent_Cancel(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"kind":"cancel","order_id":4,"user_id":9}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventCancel, event.Kind)
	assert.Equal(t, int64(4), event.OrderID)
	assert.Equal(t, int64(9), event.UserID)
}

func TestEncodeTrade(t *testing.T) {
	ts := time.Date(2024, 6, 1, 14, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	trade := &domain.Trade{
		Symbol:    "AAPL",
		Price:     10100,
		Quantity:  4,
		Timestamp: ts,
	}

	payload, err := EncodeTrade(trade)
	require.NoError(t, err)

	var tick map[string]any
	require.NoError(t, json.Unmarshal(payload, &tick))
	assert.Equal(t, "AAPL", tick["symbol"])
	assert.Equal(t, float64(10100), tick["price"])
	assert.Equal(t, float64(4), tick["quantity"])
	assert.Equal(t, "2024-06-01T12:30:00Z", tick["timestamp"]) // UTC
}
