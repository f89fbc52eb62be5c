// Package sequencer runs the exchange's single logical writer: one
// goroutine consuming decoded order events strictly in delivery order,
// applying each against the matching engine, settling the resulting
// trades and fanning them out to publishers.
package sequencer

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nathanyu/exchange-core/internal/domain"
	"github.com/nathanyu/exchange-core/internal/matching"
	"github.com/nathanyu/exchange-core/internal/middleware"
	"github.com/nathanyu/exchange-core/internal/settlement"
)

// TradePublisher receives each executed trade after its book mutation has
// committed. Implementations must not block the caller.
type TradePublisher interface {
	PublishTrade(trade *domain.Trade)
}

const errorChannelBuffer = 64

// Sequencer stamps monotonically increasing sequence IDs on events and
// trades, and owns the order in which the book observes the world.
//
// Events are never reordered, batched or parallelized across symbols.
// Settlement runs after the engine releases the book lock: a slow or
// failing settlement write delays only this event's reporting, never a
// reader, and is surfaced on the operator error channel rather than
// rolled back; the book already reflects what matched.
type Sequencer struct {
	log        *zap.SugaredLogger
	engine     *matching.Engine
	sink       settlement.Sink
	publishers []TradePublisher

	inboundSeq  atomic.Uint64
	outboundSeq atomic.Uint64

	// EventIn carries decoded events from the transport adapter.
	EventIn chan *domain.OrderEvent

	errs chan error
	done chan struct{}
}

// NewSequencer creates a sequencer wired to the given engine and
// settlement sink.
func NewSequencer(engine *matching.Engine, sink settlement.Sink, log *zap.SugaredLogger, bufferSize int) *Sequencer {
	return &Sequencer{
		log:     log,
		engine:  engine,
		sink:    sink,
		EventIn: make(chan *domain.OrderEvent, bufferSize),
		errs:    make(chan error, errorChannelBuffer),
		done:    make(chan struct{}),
	}
}

// AddPublisher registers a trade publisher. Not safe to call after Start.
func (s *Sequencer) AddPublisher(p TradePublisher) {
	s.publishers = append(s.publishers, p)
}

// Errors is the operator-facing channel for settlement failures. Failed
// settlements need out-of-band reconciliation; they are not retried here
// since a blind retry risks double-crediting.
func (s *Sequencer) Errors() <-chan error {
	return s.errs
}

// Start begins the application loop in a goroutine.
func (s *Sequencer) Start() {
	go s.run()
}

// Stop signals the sequencer to shut down.
func (s *Sequencer) Stop() {
	close(s.done)
}

// run is the main application loop. Single writer consuming from EventIn.
func (s *Sequencer) run() {
	s.log.Infow("sequencer started")
	for {
		select {
		case event := <-s.EventIn:
			s.processEvent(event)
		case <-s.done:
			s.log.Infow("sequencer stopped")
			return
		}
	}
}

// processEvent stamps sequence IDs, applies the event and handles the
// resulting trades.
func (s *Sequencer) processEvent(event *domain.OrderEvent) {
	switch event.Kind {
	case domain.EventNew, domain.EventAmend, domain.EventCancel:
	default:
		// Dropped without touching the engine or a sequence number.
		middleware.EventsTotal.WithLabelValues(string(event.Kind), "dropped").Inc()
		s.log.Warnw("unknown event kind dropped", "kind", event.Kind)
		return
	}

	seq := s.inboundSeq.Add(1)
	middleware.SequencerInboundSeq.Set(float64(seq))
	if event.Kind == domain.EventNew {
		event.Order.SequenceID = seq
	}

	trades, found := s.engine.Apply(event)

	switch event.Kind {
	case domain.EventNew:
		middleware.EventsTotal.WithLabelValues(string(event.Kind), "applied").Inc()
		s.updateDepth(event.Order.Symbol)
	default:
		if found {
			middleware.EventsTotal.WithLabelValues(string(event.Kind), "applied").Inc()
		} else {
			// Expected under races with fills; not an error.
			middleware.EventsTotal.WithLabelValues(string(event.Kind), "noop").Inc()
			s.log.Infow("target not resting, ignored",
				"kind", event.Kind, "order_id", event.OrderID, "user_id", event.UserID)
		}
	}

	for _, trade := range trades {
		outSeq := s.outboundSeq.Add(1)
		trade.SequenceID = outSeq
		middleware.SequencerOutboundSeq.Set(float64(outSeq))
		middleware.TradesTotal.WithLabelValues(trade.Symbol).Inc()

		s.settle(trade)

		for _, p := range s.publishers {
			p.PublishTrade(trade)
		}
	}
}

// settle applies the trade's cash movement. The book mutation for this
// fill has already committed, so a failure here is reported and the loop
// moves on: reconciliation is an operator concern, reopening a consumed
// order is not an option.
func (s *Sequencer) settle(trade *domain.Trade) {
	err := s.sink.Settle(trade)
	if err == nil {
		return
	}

	middleware.SettlementFailures.Inc()
	s.log.Errorw("settlement failed",
		"trade_id", trade.TradeID,
		"symbol", trade.Symbol,
		"notional", trade.Notional(),
		"err", err)

	select {
	case s.errs <- err:
	default:
		s.log.Warnw("operator error channel full, dropping settlement error",
			"trade_id", trade.TradeID)
	}
}

func (s *Sequencer) updateDepth(symbol string) {
	middleware.BookDepth.WithLabelValues(symbol, string(domain.SideBuy)).
		Set(float64(s.engine.Depth(symbol, domain.SideBuy)))
	middleware.BookDepth.WithLabelValues(symbol, string(domain.SideSell)).
		Set(float64(s.engine.Depth(symbol, domain.SideSell)))
}

// CurrentInboundSeq returns the current inbound sequence number.
func (s *Sequencer) CurrentInboundSeq() uint64 {
	return s.inboundSeq.Load()
}

// CurrentOutboundSeq returns the current outbound sequence number.
func (s *Sequencer) CurrentOutboundSeq() uint64 {
	return s.outboundSeq.Load()
}
