package escrow

import "time"

// Event types emitted by the ledger.
const (
	EventCreated  = "escrow.created"
	EventReleased = "escrow.released"
	EventRefunded = "escrow.refunded"
)

// Event is a resolved escrow lifecycle notification. Created events carry
// both parties; released events carry the seller (the payee) and refunded
// events the buyer.
type Event struct {
	Type   string    `json:"type"`
	ID     uint64    `json:"id"`
	Buyer  string    `json:"buyer,omitempty"`
	Seller string    `json:"seller,omitempty"`
	Amount string    `json:"amount"`
	At     time.Time `json:"at"`
}

// Sink receives ledger events. Implementations must not block: the ledger
// calls sinks inline after the state transition is committed, and never
// looks at the outcome.
type Sink interface {
	EscrowEvent(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) EscrowEvent(ev Event) { f(ev) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) EscrowEvent(ev Event) {
	for _, s := range m {
		s.EscrowEvent(ev)
	}
}

// CreatedEvent builds the escrow.created notification.
func CreatedEvent(e *Escrow) Event {
	return Event{
		Type:   EventCreated,
		ID:     e.ID,
		Buyer:  e.Buyer.String(),
		Seller: e.Seller.String(),
		Amount: e.Amount,
		At:     e.CreatedAt,
	}
}

// ReleasedEvent builds the escrow.released notification.
func ReleasedEvent(e *Escrow) Event {
	ev := Event{
		Type:   EventReleased,
		ID:     e.ID,
		Seller: e.Seller.String(),
		Amount: e.Amount,
	}
	if e.ResolvedAt != nil {
		ev.At = *e.ResolvedAt
	}
	return ev
}

// RefundedEvent builds the escrow.refunded notification.
func RefundedEvent(e *Escrow) Event {
	ev := Event{
		Type:   EventRefunded,
		ID:     e.ID,
		Buyer:  e.Buyer.String(),
		Amount: e.Amount,
	}
	if e.ResolvedAt != nil {
		ev.At = *e.ResolvedAt
	}
	return ev
}
