// Package notify delivers liquidation alerts to Telegram and Discord.
// Notifications are filtered by event type so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Event types an operator can subscribe to in notify.events.
const (
	EventLiquidationSuccess = "liquidation_success"
	EventLiquidationFailed  = "liquidation_failed"
	EventOpportunity        = "opportunity"
	EventScanErrors         = "scan_errors"
	EventShutdown           = "shutdown"
)

// Message is one alert.
type Message struct {
	Event string
	Title string
	Body  string
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans messages out to every sender whose event passes the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list lets every event
// through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event passes the filter.
func (n *Notifier) Enabled(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Len returns the number of configured senders.
func (n *Notifier) Len() int {
	return len(n.senders)
}

// Notify delivers msg to all senders in parallel. A failing sender does not
// stop the others; their errors are joined.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if !n.Enabled(msg.Event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", msg.Event))
		return nil
	}

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, msg); err != nil {
				n.logger.ErrorContext(ctx, "notification failed",
					slog.String("sender", s.Name()),
					slog.String("event", msg.Event),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
