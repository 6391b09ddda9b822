package domain

import (
	"context"
	"time"
)

// ArchiveObject describes one archived ledger file.
type ArchiveObject struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the cold storage that ledger archives are written to.
type ObjectStore interface {
	Upload(ctx context.Context, path string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]ArchiveObject, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies ledger history to cold storage.
type Archiver interface {
	ArchiveRecords(ctx context.Context, records []LiquidationRecord, label string) (string, error)
}
