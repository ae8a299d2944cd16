package webhooks

import (
	"context"
	"log/slog"

	"github.com/arclabs/arcpay/internal/escrow"
	"github.com/arclabs/arcpay/internal/idgen"
)

// Emitter adapts the dispatcher to the ledger's event sink. Delivery is
// fire-and-forget: the ledger is never blocked and never sees an error.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

// EscrowEvent delivers a ledger event to every participant's subscriptions.
func (e *Emitter) EscrowEvent(ev escrow.Event) {
	if e == nil || e.d == nil {
		return
	}

	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      EventType(ev.Type),
		Timestamp: ev.At,
		Data: map[string]any{
			"escrowId": ev.ID,
			"amount":   ev.Amount,
		},
	}
	if ev.Buyer != "" {
		event.Data["buyerAddr"] = ev.Buyer
	}
	if ev.Seller != "" {
		event.Data["sellerAddr"] = ev.Seller
	}

	for _, addr := range recipients(ev) {
		go e.deliver(addr, event)
	}
}

func (e *Emitter) deliver(agentAddr string, event *Event) {
	// No deadline here: each attempt is bounded by the dispatcher's HTTP
	// client timeout, and a cancelled context would kill in-flight retries.
	if err := e.d.DispatchToAgent(context.Background(), agentAddr, event); err != nil {
		e.logger.Warn("webhook emit failed", "event", event.Type, "agent", agentAddr, "error", err)
	}
}

func recipients(ev escrow.Event) []string {
	var addrs []string
	if ev.Buyer != "" {
		addrs = append(addrs, ev.Buyer)
	}
	if ev.Seller != "" && ev.Seller != ev.Buyer {
		addrs = append(addrs, ev.Seller)
	}
	return addrs
}

var _ escrow.Sink = (*Emitter)(nil)
