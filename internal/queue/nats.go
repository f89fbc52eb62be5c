// Package queue adapts the external transport (NATS) to the engine: it
// consumes inbound order events and publishes outbound trade ticks. The
// broker itself (durability, identity of producers) is an external
// collaborator; this is only the boundary.
package queue

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nathanyu/exchange-core/internal/codec"
	"github.com/nathanyu/exchange-core/internal/domain"
	"github.com/nathanyu/exchange-core/internal/middleware"
	"github.com/nathanyu/exchange-core/internal/sequencer"
)

// Client wraps the NATS connection.
type Client struct {
	conn *nats.Conn
	log  *zap.SugaredLogger
}

// NewClient connects to NATS with reconnect handling.
func NewClient(url string, log *zap.SugaredLogger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("exchange-core"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Client{conn: conn, log: log}, nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Drain()
		c.conn.Close()
	}
}

// Consumer feeds inbound order events from a subject into the sequencer.
type Consumer struct {
	client  *Client
	subject string
	seq     *sequencer.Sequencer
	sub     *nats.Subscription
	log     *zap.SugaredLogger
}

// NewConsumer creates a consumer for the given subject.
func NewConsumer(client *Client, subject string, seq *sequencer.Sequencer, log *zap.SugaredLogger) *Consumer {
	return &Consumer{
		client:  client,
		subject: subject,
		seq:     seq,
		log:     log,
	}
}

// Start subscribes and begins forwarding events. Malformed messages are
// dropped with a warning; processing continues with the next message.
func (c *Consumer) Start() error {
	sub, err := c.client.conn.Subscribe(c.subject, c.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub
	c.log.Infow("consuming order events", "subject", c.subject)
	return nil
}

// Stop unsubscribes from the subject.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	event, err := codec.DecodeEvent(msg.Data)
	if err != nil {
		middleware.EventsTotal.WithLabelValues("unknown", "malformed").Inc()
		c.log.Warnw("malformed event dropped", "err", err)
		return
	}

	// Blocking send: backpressure lands on the transport, never on the
	// matching loop's ordering.
	c.seq.EventIn <- event
}

// TradePublisher publishes executed trades back to the transport,
// best-effort, for downstream consumers.
type TradePublisher struct {
	client  *Client
	subject string
	log     *zap.SugaredLogger
}

// NewTradePublisher creates a publisher for the given subject.
func NewTradePublisher(client *Client, subject string, log *zap.SugaredLogger) *TradePublisher {
	return &TradePublisher{
		client:  client,
		subject: subject,
		log:     log,
	}
}

// PublishTrade encodes and publishes one trade tick. Errors are logged
// and dropped; delivery here never stalls matching.
func (p *TradePublisher) PublishTrade(trade *domain.Trade) {
	payload, err := codec.EncodeTrade(trade)
	if err != nil {
		p.log.Errorw("encode trade tick", "trade_id", trade.TradeID, "err", err)
		return
	}
	if err := p.client.conn.Publish(p.subject, payload); err != nil {
		p.log.Warnw("publish trade tick failed", "trade_id", trade.TradeID, "err", err)
	}
}
