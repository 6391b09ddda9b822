package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LiquidationStore persists confirmed liquidation records.
type LiquidationStore interface {
	Insert(ctx context.Context, rec LiquidationRecord) error
	List(ctx context.Context, opts ListOpts) ([]LiquidationRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]LiquidationRecord, error)
}

// AuditEntry is a single audit log row. Borrower is lifted out of Detail
// when the entry concerns one account.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Borrower  string         `json:"borrower,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter narrows an audit query. Empty fields match everything.
type AuditFilter struct {
	ListOpts
	Event    string
	Borrower string
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
