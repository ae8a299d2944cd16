// Package funds tracks agent balances and the escrow custody account.
//
// Flow:
//  1. Agent deposits USDC (admin-credited in development, verified on-chain
//     deposit in production)
//  2. Opening an escrow moves the amount from the buyer's available balance
//     into the custody account
//  3. Resolving the escrow pays the custodied amount out to the seller
//     (release) or back to the buyer (refund)
//
// The book is the accounting truth. When a PayoutExecutor is configured,
// payouts additionally move USDC on-chain; an executor failure surfaces as
// an error and the custodied amount is not released from the book.
package funds

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/arclabs/arcpay/internal/identity"
	"github.com/arclabs/arcpay/internal/usdc"
)

var (
	ErrInsufficientBalance = errors.New("funds: insufficient balance")
	ErrInsufficientCustody = errors.New("funds: insufficient custody")
	ErrInvalidAmount       = errors.New("funds: invalid amount")
)

// PayoutExecutor performs the external transfer backing a payout. The book
// calls it before updating balances so a failed transfer never leaves the
// book claiming money moved.
type PayoutExecutor interface {
	ExecuteTransfer(ctx context.Context, to identity.Address, amount *big.Int) error
}

// Entry is one journal line.
type Entry struct {
	Agent     identity.Address `json:"agent"`
	Type      string           `json:"type"` // deposit, custody, payout
	Amount    string           `json:"amount"`
	Reference string           `json:"reference,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Balance is an agent's position.
type Balance struct {
	Agent     identity.Address `json:"agent"`
	Available string           `json:"available"`
	TotalIn   string           `json:"totalIn"`
	TotalOut  string           `json:"totalOut"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type account struct {
	available *big.Int
	totalIn   *big.Int
	totalOut  *big.Int
	updatedAt time.Time
}

// Book is the in-process account book. All balance math is big.Int in
// smallest units; amounts cross the API as decimal strings.
type Book struct {
	mu       sync.RWMutex
	accounts map[identity.Address]*account
	custody  *big.Int
	journal  []*Entry
	executor PayoutExecutor
}

// Option configures a Book.
type Option func(*Book)

// WithExecutor attaches an on-chain payout executor.
func WithExecutor(e PayoutExecutor) Option {
	return func(b *Book) { b.executor = e }
}

// NewBook creates an empty book.
func NewBook(opts ...Option) *Book {
	b := &Book{
		accounts: make(map[identity.Address]*account),
		custody:  big.NewInt(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) acct(addr identity.Address) *account {
	a, ok := b.accounts[addr]
	if !ok {
		a = &account{
			available: big.NewInt(0),
			totalIn:   big.NewInt(0),
			totalOut:  big.NewInt(0),
		}
		b.accounts[addr] = a
	}
	return a
}

// Deposit credits an agent's available balance.
func (b *Book) Deposit(ctx context.Context, agent identity.Address, amount string) error {
	v, err := usdc.ParsePositive(amount)
	if err != nil {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.acct(agent)
	a.available.Add(a.available, v)
	a.totalIn.Add(a.totalIn, v)
	a.updatedAt = time.Now()

	b.append(agent, "deposit", v, "")
	return nil
}

// Custody moves amount from the agent's available balance into the custody
// account. Called when an escrow opens.
func (b *Book) Custody(ctx context.Context, from identity.Address, amount string, reference string) error {
	v, err := usdc.ParsePositive(amount)
	if err != nil {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.acct(from)
	if a.available.Cmp(v) < 0 {
		return ErrInsufficientBalance
	}
	a.available.Sub(a.available, v)
	a.updatedAt = time.Now()
	b.custody.Add(b.custody, v)

	b.append(from, "custody", v, reference)
	return nil
}

// Payout moves amount from the custody account to the recipient's available
// balance, running the on-chain executor first when one is configured. On
// executor failure the book is untouched and the error is returned.
func (b *Book) Payout(ctx context.Context, to identity.Address, amount string, reference string) error {
	v, err := usdc.ParsePositive(amount)
	if err != nil {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	if b.custody.Cmp(v) < 0 {
		b.mu.Unlock()
		return ErrInsufficientCustody
	}
	b.mu.Unlock()

	// Executor runs outside the book lock; it may be slow (RPC round trip)
	// and may call back into the service.
	if b.executor != nil {
		if err := b.executor.ExecuteTransfer(ctx, to, v); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.custody.Cmp(v) < 0 {
		return ErrInsufficientCustody
	}
	b.custody.Sub(b.custody, v)

	a := b.acct(to)
	a.available.Add(a.available, v)
	a.totalOut.Add(a.totalOut, v)
	a.updatedAt = time.Now()

	b.append(to, "payout", v, reference)
	return nil
}

// Balance returns an agent's position. Unknown agents report zero.
func (b *Book) Balance(ctx context.Context, agent identity.Address) (*Balance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.accounts[agent]
	if !ok {
		return &Balance{
			Agent:     agent,
			Available: usdc.Format(nil),
			TotalIn:   usdc.Format(nil),
			TotalOut:  usdc.Format(nil),
			UpdatedAt: time.Now(),
		}, nil
	}
	return &Balance{
		Agent:     agent,
		Available: usdc.Format(a.available),
		TotalIn:   usdc.Format(a.totalIn),
		TotalOut:  usdc.Format(a.totalOut),
		UpdatedAt: a.updatedAt,
	}, nil
}

// CustodyBalance returns the total held in custody.
func (b *Book) CustodyBalance(ctx context.Context) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return usdc.Format(b.custody)
}

// History returns the most recent journal entries for an agent, newest first.
func (b *Book) History(ctx context.Context, agent identity.Address, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Entry, 0, limit)
	for i := len(b.journal) - 1; i >= 0 && len(out) < limit; i-- {
		if b.journal[i].Agent == agent {
			out = append(out, b.journal[i])
		}
	}
	return out, nil
}

// append records a journal line. Caller holds b.mu.
func (b *Book) append(agent identity.Address, typ string, v *big.Int, reference string) {
	b.journal = append(b.journal, &Entry{
		Agent:     agent,
		Type:      typ,
		Amount:    usdc.Format(v),
		Reference: reference,
		CreatedAt: time.Now(),
	})
}
