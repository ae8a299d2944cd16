// Package escrow holds buyer funds in custody until resolution.
//
// Flow:
//  1. Buyer opens an escrow → funds moved: buyer available → custody
//  2. Buyer releases → custody → seller available
//  3. Seller refunds early, or anyone refunds after the timeout →
//     custody → buyer available
//
// Every escrow resolves exactly once. The terminal state is committed to
// the store before the payout runs, so a transfer that calls back into
// the ledger sees the terminal state and is rejected.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/arclabs/arcpay/internal/identity"
	"github.com/arclabs/arcpay/internal/metrics"
	"github.com/arclabs/arcpay/internal/traces"
	"github.com/arclabs/arcpay/internal/usdc"
)

var (
	ErrInvalidBuyer     = errors.New("escrow: invalid buyer")
	ErrInvalidSeller    = errors.New("escrow: invalid seller")
	ErrInvalidAmount    = errors.New("escrow: invalid amount")
	ErrAmountMismatch   = errors.New("escrow: provided funds do not match amount")
	ErrEscrowNotFound   = errors.New("escrow: not found")
	ErrEscrowNotActive  = errors.New("escrow: not active")
	ErrOnlyBuyer        = errors.New("escrow: only the buyer may release")
	ErrRefundNotAllowed = errors.New("escrow: refund not allowed yet")
	ErrTransferFailed   = errors.New("escrow: transfer failed")
)

// State is the escrow lifecycle state.
type State string

const (
	StateActive   State = "active"
	StateReleased State = "released"
	StateRefunded State = "refunded"
)

// DefaultTimeout is the window after which refunds become permissionless.
const DefaultTimeout = 24 * time.Hour

// Escrow is one custody record. IDs are assigned sequentially from 0 and
// never reused.
type Escrow struct {
	ID            uint64           `json:"id"`
	Buyer         identity.Address `json:"buyer"`
	Seller        identity.Address `json:"seller"`
	Amount        string           `json:"amount"`
	State         State            `json:"state"`
	CreatedAt     time.Time        `json:"createdAt"`
	ResolvedAt    *time.Time       `json:"resolvedAt,omitempty"`
	TransferError string           `json:"transferError,omitempty"`
}

// Active reports whether the escrow can still be resolved.
func (e *Escrow) Active() bool {
	return e.State == StateActive
}

// Stats summarizes the ledger for the stats endpoint and invariant checks.
type Stats struct {
	Counts    map[State]int `json:"counts"`
	Custodied string        `json:"custodiedBalance"`
}

// Store persists escrow records.
type Store interface {
	Create(ctx context.Context, e *Escrow) error
	Get(ctx context.Context, id uint64) (*Escrow, error)
	Update(ctx context.Context, e *Escrow) error
	ListByAgent(ctx context.Context, addr identity.Address, limit int) ([]*Escrow, error)
	// NextID returns the next unused ID (max assigned + 1, or 0 when empty).
	NextID(ctx context.Context) (uint64, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Treasury moves funds in and out of custody. Implemented by funds.Book.
type Treasury interface {
	Custody(ctx context.Context, from identity.Address, amount string, reference string) error
	Payout(ctx context.Context, to identity.Address, amount string, reference string) error
}

// CreateRequest carries the parameters for opening an escrow.
// FundsProvided is the amount the buyer actually attached; it must equal
// Amount exactly.
type CreateRequest struct {
	Seller        identity.Address
	Amount        string
	FundsProvided string
}

// Ledger implements the escrow state machine.
type Ledger struct {
	store    Store
	treasury Treasury
	sink     Sink
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	// createMu serializes ID allocation + insert so IDs come out gapless.
	createMu sync.Mutex
	nextID   uint64
	seeded   bool

	locks sync.Map // per-escrow ID locks to serialize state transitions
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithTimeout overrides the permissionless-refund window.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// WithSink attaches an event sink. Sinks must not block; the ledger calls
// them synchronously after commit and ignores anything they do.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates an escrow ledger.
func NewLedger(store Store, treasury Treasury, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		treasury: treasury,
		logger:   slog.Default(),
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Timeout returns the permissionless-refund window.
func (l *Ledger) Timeout() time.Duration {
	return l.timeout
}

func (l *Ledger) lock(id uint64) *sync.Mutex {
	v, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func reference(id uint64) string {
	return "escrow-" + strconv.FormatUint(id, 10)
}

// createReference annotates custody entries made before an ID exists.
const createReference = "escrow-create"

// Create opens an escrow for caller (the buyer) and custodies the funds.
func (l *Ledger) Create(ctx context.Context, caller identity.Address, req CreateRequest) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create",
		traces.Buyer(caller.String()),
		traces.Seller(req.Seller.String()),
		traces.Amount(req.Amount),
	)
	defer span.End()

	if caller.IsZero() {
		return nil, ErrInvalidBuyer
	}
	if req.Seller.IsZero() {
		return nil, ErrInvalidSeller
	}
	amount, err := usdc.ParsePositive(req.Amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if !usdc.Equal(req.Amount, req.FundsProvided) {
		return nil, ErrAmountMismatch
	}
	canonical := usdc.Format(amount)

	// Custody before the record exists: a failed insert just pays the
	// buyer back, and the treasury never runs under the create lock, so
	// a treasury that calls back into the ledger cannot deadlock.
	if err := l.treasury.Custody(ctx, caller, canonical, createReference); err != nil {
		return nil, fmt.Errorf("custody funds: %w", err)
	}

	l.createMu.Lock()
	if !l.seeded {
		next, err := l.store.NextID(ctx)
		if err != nil {
			l.createMu.Unlock()
			_ = l.treasury.Payout(ctx, caller, canonical, createReference)
			return nil, fmt.Errorf("seed escrow id: %w", err)
		}
		l.nextID = next
		l.seeded = true
	}

	e := &Escrow{
		ID:        l.nextID,
		Buyer:     caller,
		Seller:    req.Seller,
		Amount:    canonical,
		State:     StateActive,
		CreatedAt: l.now(),
	}

	if err := l.store.Create(ctx, e); err != nil {
		l.createMu.Unlock()
		// Return the custodied funds; the escrow never existed.
		_ = l.treasury.Payout(ctx, caller, canonical, createReference)
		return nil, fmt.Errorf("create escrow record: %w", err)
	}
	l.nextID++
	l.createMu.Unlock()

	metrics.EscrowsCreatedTotal.Inc()
	metrics.CustodiedBalance.Add(gaugeAmount(canonical))
	l.logger.Info("escrow created",
		"id", e.ID, "buyer", e.Buyer.String(), "seller", e.Seller.String(), "amount", canonical)

	l.emit(CreatedEvent(e))
	return e, nil
}

// Release pays the custodied amount to the seller. Only the buyer may
// release, and only while the escrow is active.
func (l *Ledger) Release(ctx context.Context, caller identity.Address, id uint64) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Release", traces.EscrowID(id))
	defer span.End()

	mu := l.lock(id)
	mu.Lock()

	e, err := l.store.Get(ctx, id)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if !e.Active() {
		mu.Unlock()
		return nil, ErrEscrowNotActive
	}
	if caller != e.Buyer {
		mu.Unlock()
		return nil, ErrOnlyBuyer
	}

	now := l.now()
	e.State = StateReleased
	e.ResolvedAt = &now
	if err := l.store.Update(ctx, e); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("commit release: %w", err)
	}
	mu.Unlock()

	// State is committed; the transfer runs outside the lock. A payout that
	// calls back into the ledger now sees a released escrow.
	if err := l.treasury.Payout(ctx, e.Seller, e.Amount, reference(id)); err != nil {
		return l.recordTransferFailure(ctx, e, "release", err)
	}

	l.resolved(e, now)
	metrics.EscrowsReleasedTotal.Inc()
	l.logger.Info("escrow released", "id", id, "seller", e.Seller.String(), "amount", e.Amount)

	l.emit(ReleasedEvent(e))
	return e, nil
}

// Refund returns the custodied amount to the buyer. The seller may refund
// at any time; after the timeout anyone may. The timeout boundary is
// inclusive: at exactly createdAt+timeout the refund is allowed.
func (l *Ledger) Refund(ctx context.Context, caller identity.Address, id uint64) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Refund", traces.EscrowID(id))
	defer span.End()

	mu := l.lock(id)
	mu.Lock()

	e, err := l.store.Get(ctx, id)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if !e.Active() {
		mu.Unlock()
		return nil, ErrEscrowNotActive
	}

	now := l.now()
	reason := "seller"
	if caller != e.Seller {
		if now.Before(e.CreatedAt.Add(l.timeout)) {
			mu.Unlock()
			return nil, ErrRefundNotAllowed
		}
		reason = "timeout"
	}
	span.SetAttributes(traces.RefundReason(reason))

	e.State = StateRefunded
	e.ResolvedAt = &now
	if err := l.store.Update(ctx, e); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("commit refund: %w", err)
	}
	mu.Unlock()

	if err := l.treasury.Payout(ctx, e.Buyer, e.Amount, reference(id)); err != nil {
		return l.recordTransferFailure(ctx, e, "refund", err)
	}

	l.resolved(e, now)
	metrics.EscrowsRefundedTotal.WithLabelValues(reason).Inc()
	l.logger.Info("escrow refunded",
		"id", id, "buyer", e.Buyer.String(), "amount", e.Amount, "reason", reason)

	l.emit(RefundedEvent(e))
	return e, nil
}

// recordTransferFailure handles a payout that failed after commit. The
// state stays terminal; there is no automatic retry or compensation. The
// failure is recorded on the record and alerted via metric and log.
func (l *Ledger) recordTransferFailure(ctx context.Context, e *Escrow, op string, cause error) (*Escrow, error) {
	e.TransferError = cause.Error()
	if err := l.store.Update(ctx, e); err != nil {
		l.logger.Error("failed to record transfer error", "id", e.ID, "error", err)
	}

	metrics.TransferFailuresTotal.WithLabelValues(op).Inc()
	l.logger.Error("payout failed on terminal escrow, manual resolution required",
		"id", e.ID, "operation", op, "state", e.State, "amount", e.Amount, "error", cause)

	return nil, fmt.Errorf("%w: %v", ErrTransferFailed, cause)
}

// resolved updates resolution metrics.
func (l *Ledger) resolved(e *Escrow, now time.Time) {
	metrics.CustodiedBalance.Sub(gaugeAmount(e.Amount))
	metrics.EscrowDuration.Observe(now.Sub(e.CreatedAt).Seconds())
}

// Get returns an escrow by ID.
func (l *Ledger) Get(ctx context.Context, id uint64) (*Escrow, error) {
	return l.store.Get(ctx, id)
}

// IsTimedOut reports whether the permissionless-refund window has opened.
func (l *Ledger) IsTimedOut(ctx context.Context, id uint64) (bool, error) {
	e, err := l.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return !l.now().Before(e.CreatedAt.Add(l.timeout)), nil
}

// TimeUntilTimeout returns the remaining time before the window opens, or
// zero once it has.
func (l *Ledger) TimeUntilTimeout(ctx context.Context, id uint64) (time.Duration, error) {
	e, err := l.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	remaining := e.CreatedAt.Add(l.timeout).Sub(l.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CustodiedBalance returns the total held across active escrows.
func (l *Ledger) CustodiedBalance(ctx context.Context) (string, error) {
	stats, err := l.store.Stats(ctx)
	if err != nil {
		return "", err
	}
	return stats.Custodied, nil
}

// Stats returns per-state counts and the custodied balance.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	return l.store.Stats(ctx)
}

// ListByAgent returns escrows involving an agent as buyer or seller.
func (l *Ledger) ListByAgent(ctx context.Context, addr identity.Address, limit int) ([]*Escrow, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListByAgent(ctx, addr, limit)
}

func (l *Ledger) emit(ev Event) {
	if l.sink != nil {
		l.sink.EscrowEvent(ev)
	}
}

// gaugeAmount converts an amount string to float64 USDC for gauge math.
// Only used for metrics; balance accounting never touches floats.
func gaugeAmount(s string) float64 {
	v, err := usdc.Parse(s)
	if err != nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e6)).Float64()
	return f
}
