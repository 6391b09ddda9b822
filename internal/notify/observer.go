package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// failureDedupTTL suppresses repeated alerts for the same borrower and reason.
const failureDedupTTL = 30 * time.Minute

// Observer turns engine events into notifications. Delivery happens on the
// goroutine running Run so the scheduler never waits on a webhook.
type Observer struct {
	notifier *Notifier
	dedup    *Dedup
	queue    chan Message
	logger   *slog.Logger
}

var _ domain.EngineObserver = (*Observer)(nil)

// NewObserver wraps notifier as an engine observer.
func NewObserver(notifier *Notifier, logger *slog.Logger) *Observer {
	return &Observer{
		notifier: notifier,
		dedup:    NewDedup(failureDedupTTL),
		queue:    make(chan Message, 64),
		logger:   logger.With(slog.String("component", "notify_observer")),
	}
}

// OnScan alerts when a scan could not read some borrowers.
func (o *Observer) OnScan(_ context.Context, r domain.ScanReport) {
	if r.ReadErrors == 0 || o.dedup.IsDuplicate("scan_errors") {
		return
	}
	o.enqueue(EventScanErrors, "Scan read errors",
		fmt.Sprintf("%d of %d borrowers could not be read", r.ReadErrors, r.Borrowers))
}

// OnOpportunity alerts on every admissible opportunity.
func (o *Observer) OnOpportunity(_ context.Context, opp domain.LiquidationOpportunity) {
	o.enqueue(EventOpportunity, "Liquidation opportunity", describe(opp))
}

// OnResult alerts on successes and on failures not seen recently.
func (o *Observer) OnResult(_ context.Context, opp domain.LiquidationOpportunity, res domain.ExecutionResult) {
	if res.Success {
		body := describe(opp)
		if res.Record != nil {
			body += fmt.Sprintf("\ntx: %s\nblock: %d", res.Record.TxHash, res.Record.BlockNumber)
		}
		o.enqueue(EventLiquidationSuccess, "Liquidation confirmed", body)
		return
	}
	key := strings.ToLower(opp.Borrower.Hex()) + "|" + res.Reason
	if o.dedup.IsDuplicate(key) {
		return
	}
	body := describe(opp) + "\nreason: " + res.Reason
	if res.TxHash != "" {
		body += "\ntx: " + res.TxHash
	}
	o.enqueue(EventLiquidationFailed, "Liquidation failed", body)
}

func (o *Observer) enqueue(event, title, body string) {
	if !o.notifier.Enabled(event) || o.notifier.Len() == 0 {
		return
	}
	select {
	case o.queue <- Message{Event: event, Title: title, Body: body}:
	default:
		o.logger.Warn("notification queue full, dropping", slog.String("event", event))
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-o.queue:
			_ = o.notifier.Notify(ctx, m)
		}
	}
}

// Shutdown sends the session summary synchronously.
func (o *Observer) Shutdown(ctx context.Context, summary string) error {
	return o.notifier.Notify(ctx, Message{Event: EventShutdown, Title: "Liquidation bot stopped", Body: summary})
}

func describe(opp domain.LiquidationOpportunity) string {
	return fmt.Sprintf("borrower: %s\nrepay: %s $%.2f\nseize: %s\nexpected profit: $%.2f",
		opp.Borrower.Hex(), opp.Borrow.Market.Symbol, opp.RepayUSD,
		opp.Collateral.Market.Symbol, opp.ExpectedProfitUSD)
}
