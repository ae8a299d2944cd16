package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/arclabs/arcpay/internal/identity"
	"github.com/arclabs/arcpay/internal/usdc"
)

// MemoryStore is an in-memory escrow store for demo/development mode.
type MemoryStore struct {
	escrows map[uint64]*Escrow
	nextID  uint64
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		escrows: make(map[uint64]*Escrow),
	}
}

func (m *MemoryStore) Create(ctx context.Context, e *Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.escrows[e.ID]; exists {
		return fmt.Errorf("escrow %d already exists", e.ID)
	}
	cp := *e
	m.escrows[e.ID] = &cp
	if e.ID >= m.nextID {
		m.nextID = e.ID + 1
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uint64) (*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.escrows[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	// Copy so callers never share the stored pointer.
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, e *Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.escrows[e.ID]; !ok {
		return ErrEscrowNotFound
	}
	cp := *e
	m.escrows[e.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByAgent(ctx context.Context, addr identity.Address, limit int) ([]*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Escrow
	for _, e := range m.escrows {
		if e.Buyer == addr || e.Seller == addr {
			cp := *e
			result = append(result, &cp)
		}
	}
	// Newest first, stable for tests.
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) NextID(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[State]int{}
	custodied := big.NewInt(0)
	for _, e := range m.escrows {
		counts[e.State]++
		if e.State == StateActive {
			v, err := usdc.Parse(e.Amount)
			if err != nil {
				return nil, fmt.Errorf("stored amount %q on escrow %d: %w", e.Amount, e.ID, err)
			}
			custodied.Add(custodied, v)
		}
	}
	return &Stats{Counts: counts, Custodied: usdc.Format(custodied)}, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
