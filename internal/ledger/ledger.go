// Package ledger keeps the process-lifetime history of confirmed
// liquidations and aggregate statistics.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const persistQueueSize = 256

// Ledger is an append-only, in-memory list of liquidation records. When a
// store is attached, records are persisted write-behind by Run; the
// in-memory copy stays authoritative.
type Ledger struct {
	mu       sync.RWMutex
	records  []domain.LiquidationRecord
	attempts int
	failures int

	store   domain.LiquidationStore
	pending chan domain.LiquidationRecord
	logger  *slog.Logger
}

// New creates a Ledger. store may be nil.
func New(store domain.LiquidationStore, logger *slog.Logger) *Ledger {
	l := &Ledger{
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
	}
	if store != nil {
		l.pending = make(chan domain.LiquidationRecord, persistQueueSize)
	}
	return l
}

// Append adds a confirmed record.
func (l *Ledger) Append(rec domain.LiquidationRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.pending == nil {
		return
	}
	select {
	case l.pending <- rec:
	default:
		l.logger.Error("persist queue full, record kept in memory only",
			slog.String("id", rec.ID),
			slog.String("tx", rec.TxHash),
		)
	}
}

// RecordAttempt counts an execution attempt.
func (l *Ledger) RecordAttempt(success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if !success {
		l.failures++
	}
}

// Records returns a copy of all records in append order.
func (l *Ledger) Records() []domain.LiquidationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LiquidationRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(limit int) []domain.LiquidationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.LiquidationRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Stats aggregates the ledger.
func (l *Ledger) Stats() domain.LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := domain.LedgerStats{
		Count:    len(l.records),
		Attempts: l.attempts,
		Failures: l.failures,
	}
	for _, r := range l.records {
		s.TotalProfitUSD += r.ProfitUSD
		s.TotalVolumeUSD += r.LiquidationUSD
	}
	if s.Count > 0 {
		s.AverageProfitUSD = s.TotalProfitUSD / float64(s.Count)
	}
	return s
}

// Run persists queued records until ctx is cancelled, then flushes what is
// left with a short deadline. It returns immediately when no store is set.
func (l *Ledger) Run(ctx context.Context) error {
	if l.pending == nil {
		return nil
	}
	for {
		select {
		case rec := <-l.pending:
			l.persist(ctx, rec)
		case <-ctx.Done():
			l.flush()
			return nil
		}
	}
}

func (l *Ledger) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-l.pending:
			l.persist(ctx, rec)
		default:
			return
		}
	}
}

func (l *Ledger) persist(ctx context.Context, rec domain.LiquidationRecord) {
	if err := l.store.Insert(ctx, rec); err != nil {
		l.logger.Error("persist liquidation record failed",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Summary renders stats for the shutdown report.
func Summary(s domain.LedgerStats) string {
	return fmt.Sprintf(
		"liquidations: %d | total profit: $%.2f | total volume: $%.2f | average profit: $%.2f | attempts: %d | failures: %d",
		s.Count, s.TotalProfitUSD, s.TotalVolumeUSD, s.AverageProfitUSD, s.Attempts, s.Failures,
	)
}
