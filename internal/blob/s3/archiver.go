package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	archivePrefix    = "ledger/"
)

// RecordSource lists persisted liquidation records older than a cutoff.
type RecordSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.LiquidationRecord, error)
}

// Archiver implements domain.Archiver by serializing liquidation records to
// JSONL under ledger/ in the bucket. Archived records are not removed from
// the primary store.
type Archiver struct {
	store domain.ObjectStore
	audit domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(store domain.ObjectStore, audit domain.AuditStore) *Archiver {
	return &Archiver{store: store, audit: audit}
}

// ArchiveRecords uploads records to ledger/{label}.jsonl and returns the
// object path. Nothing is written for an empty slice.
func (a *Archiver) ArchiveRecords(ctx context.Context, records []domain.LiquidationRecord, label string) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(label)
	if err := a.store.Upload(ctx, path, buf, jsonlContentType); err != nil {
		return "", fmt.Errorf("s3blob: archive upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledger", map[string]any{
			"path":  path,
			"count": len(records),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return path, nil
}

// ArchiveBefore archives every record in src older than before, labelled by
// the cutoff date. A cutoff already archived is skipped and returns "".
func (a *Archiver) ArchiveBefore(ctx context.Context, src RecordSource, before time.Time) (string, error) {
	label := "until-" + before.UTC().Format("2006-01-02")
	exists, err := a.store.Exists(ctx, archivePath(label))
	if err != nil {
		return "", err
	}
	if exists {
		return "", nil
	}

	records, err := src.ListBefore(ctx, before)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive query: %w", err)
	}
	return a.ArchiveRecords(ctx, records, label)
}

// List returns the archives written so far.
func (a *Archiver) List(ctx context.Context) ([]domain.ArchiveObject, error) {
	return a.store.List(ctx, archivePrefix)
}

// SessionLabel names the archive for a bot session that started at t.
func SessionLabel(t time.Time) string {
	return "sessions/" + t.UTC().Format("20060102T150405Z")
}

func archivePath(label string) string {
	return archivePrefix + strings.TrimPrefix(label, "/") + ".jsonl"
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
