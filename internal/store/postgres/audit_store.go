package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// AuditStore is the audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one entry. A string "borrower" key in detail is also written
// to its own indexed column so per-account history stays cheap to query.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	var borrower *string
	if b, ok := detail["borrower"].(string); ok && b != "" {
		borrower = &b
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: encode detail: %w", event, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, borrower, detail) VALUES ($1, $2, $3)`,
		event, borrower, raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (s *AuditStore) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	query, args := auditQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}

// auditQuery builds the filtered select. Borrower matching ignores case so
// checksummed and lowercase addresses find the same rows.
func auditQuery(filter domain.AuditFilter) (string, []any) {
	var sb strings.Builder
	var args []any
	sb.WriteString(`SELECT id, event, COALESCE(borrower, ''), detail, created_at FROM audit_log WHERE 1=1`)
	if filter.Event != "" {
		args = append(args, filter.Event)
		fmt.Fprintf(&sb, " AND event = $%d", len(args))
	}
	if filter.Borrower != "" {
		args = append(args, strings.ToLower(filter.Borrower))
		fmt.Fprintf(&sb, " AND lower(borrower) = $%d", len(args))
	}
	return applyListOpts(sb.String(), args, "created_at", filter.ListOpts)
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var raw []byte
	if err := row.Scan(&e.ID, &e.Event, &e.Borrower, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("decode detail of entry %d: %w", e.ID, err)
		}
	}
	return e, nil
}
