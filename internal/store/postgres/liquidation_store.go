package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// LiquidationStore implements domain.LiquidationStore using PostgreSQL.
type LiquidationStore struct {
	pool *pgxpool.Pool
}

var _ domain.LiquidationStore = (*LiquidationStore)(nil)

// NewLiquidationStore creates a new LiquidationStore backed by the given
// connection pool.
func NewLiquidationStore(pool *pgxpool.Pool) *LiquidationStore {
	return &LiquidationStore{pool: pool}
}

const liquidationSelectCols = `id, ts, borrower, repay_symbol, repay_amount,
	seize_symbol, liquidation_usd, profit_usd, tx_hash, gas_used, block_number`

func scanLiquidationRows(rows pgx.Rows) ([]domain.LiquidationRecord, error) {
	var out []domain.LiquidationRecord
	for rows.Next() {
		var r domain.LiquidationRecord
		var gasUsed, block int64
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Borrower, &r.RepaySymbol, &r.RepayAmount,
			&r.SeizeSymbol, &r.LiquidationUSD, &r.ProfitUSD, &r.TxHash,
			&gasUsed, &block,
		); err != nil {
			return nil, err
		}
		r.GasUsed = uint64(gasUsed)
		r.BlockNumber = uint64(block)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert writes rec. Re-inserting a record with the same ID is a no-op so the
// write-behind ledger can retry safely.
func (s *LiquidationStore) Insert(ctx context.Context, rec domain.LiquidationRecord) error {
	const query = `
		INSERT INTO liquidations (
			id, ts, borrower, repay_symbol, repay_amount,
			seize_symbol, liquidation_usd, profit_usd, tx_hash,
			gas_used, block_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Timestamp, rec.Borrower, rec.RepaySymbol, rec.RepayAmount,
		rec.SeizeSymbol, rec.LiquidationUSD, rec.ProfitUSD, rec.TxHash,
		int64(rec.GasUsed), int64(rec.BlockNumber),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert liquidation %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records newest first.
func (s *LiquidationStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LiquidationRecord, error) {
	query, args := applyListOpts(
		`SELECT `+liquidationSelectCols+` FROM liquidations WHERE 1=1`,
		nil, "ts", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list liquidations: %w", err)
	}
	defer rows.Close()

	out, err := scanLiquidationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan liquidations: %w", err)
	}
	return out, nil
}

// ListBefore returns every record older than before, oldest first.
func (s *LiquidationStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LiquidationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+liquidationSelectCols+` FROM liquidations WHERE ts < $1 ORDER BY ts ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list liquidations before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	out, err := scanLiquidationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan liquidations: %w", err)
	}
	return out, nil
}
