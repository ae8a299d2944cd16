package escrow

import (
	"context"
	"database/sql"
	"time"

	"github.com/arclabs/arcpay/internal/identity"
	"github.com/arclabs/arcpay/internal/usdc"
)

// PostgresStore persists escrow records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const escrowColumns = `id, buyer_addr, seller_addr, amount, state, created_at, resolved_at, transfer_error`

func (p *PostgresStore) Create(ctx context.Context, e *Escrow) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5, $6, $7, $8)`,
		int64(e.ID), e.Buyer.String(), e.Seller.String(), e.Amount,
		string(e.State), e.CreatedAt, nullTime(e.ResolvedAt), nullString(e.TransferError),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id uint64) (*Escrow, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, int64(id))

	e, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return e, err
}

func (p *PostgresStore) Update(ctx context.Context, e *Escrow) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE escrows SET
			state = $1, resolved_at = $2, transfer_error = $3
		WHERE id = $4`,
		string(e.State), nullTime(e.ResolvedAt), nullString(e.TransferError), int64(e.ID),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

func (p *PostgresStore) ListByAgent(ctx context.Context, addr identity.Address, limit int) ([]*Escrow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE buyer_addr = $1 OR seller_addr = $1
		ORDER BY id DESC
		LIMIT $2`, addr.String(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) NextID(ctx context.Context) (uint64, error) {
	var next int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id) + 1, 0) FROM escrows`).Scan(&next)
	if err != nil {
		return 0, err
	}
	return uint64(next), nil
}

func (p *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT state, COUNT(*), COALESCE(SUM(amount), 0)
		FROM escrows
		GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := &Stats{Counts: map[State]int{}, Custodied: usdc.Format(nil)}
	for rows.Next() {
		var (
			state string
			count int
			sum   string
		)
		if err := rows.Scan(&state, &count, &sum); err != nil {
			return nil, err
		}
		stats.Counts[State(state)] = count
		if State(state) == StateActive {
			canonical, err := usdc.Canonical(sum)
			if err != nil {
				return nil, err
			}
			stats.Custodied = canonical
		}
	}
	return stats, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEscrow(s scanner) (*Escrow, error) {
	e := &Escrow{}
	var (
		id            int64
		buyer, seller string
		state         string
		resolvedAt    sql.NullTime
		transferError sql.NullString
	)

	err := s.Scan(&id, &buyer, &seller, &e.Amount, &state, &e.CreatedAt, &resolvedAt, &transferError)
	if err != nil {
		return nil, err
	}

	e.ID = uint64(id)
	e.State = State(state)
	e.TransferError = transferError.String
	if resolvedAt.Valid {
		e.ResolvedAt = &resolvedAt.Time
	}
	if e.Buyer, err = identity.Parse(buyer); err != nil {
		return nil, err
	}
	if e.Seller, err = identity.Parse(seller); err != nil {
		return nil, err
	}
	return e, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
