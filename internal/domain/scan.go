package domain

import (
	"context"
	"time"
)

// ScanReport summarizes one scheduler tick.
type ScanReport struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Borrowers     int           `json:"borrowers"`
	Underwater    int           `json:"underwater"`
	ReadErrors    int           `json:"read_errors"`
	Opportunities int           `json:"opportunities"`
	Executed      int           `json:"executed"`
	Succeeded     int           `json:"succeeded"`
}

// EngineObserver receives scan and execution events. Implementations must
// not block for long; they run on the scheduler goroutine.
type EngineObserver interface {
	OnScan(ctx context.Context, report ScanReport)
	OnOpportunity(ctx context.Context, opp LiquidationOpportunity)
	OnResult(ctx context.Context, opp LiquidationOpportunity, res ExecutionResult)
}
