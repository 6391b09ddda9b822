// Package service fans engine events out to shared infrastructure: the
// Redis event bus and the Postgres audit log.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const auditTimeout = 3 * time.Second

// Event is the envelope published on the bus and the websocket feed.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Event types.
const (
	EventScan        = "scan"
	EventOpportunity = "opportunity"
	EventResult      = "result"
)

// ResultData is the payload of a result event.
type ResultData struct {
	Opportunity domain.OpportunityView    `json:"opportunity"`
	Success     bool                      `json:"success"`
	Reason      string                    `json:"reason,omitempty"`
	TxHash      string                    `json:"tx_hash,omitempty"`
	Record      *domain.LiquidationRecord `json:"record,omitempty"`
}

// Broadcaster receives every encoded event with its channel, e.g. the
// websocket hub when no bus is configured.
type Broadcaster interface {
	Broadcast(channel string, payload []byte)
}

// EventService implements domain.EngineObserver. Any of its sinks may be nil.
type EventService struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	local  Broadcaster
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.EngineObserver = (*EventService)(nil)

// NewEventService creates an EventService.
func NewEventService(bus domain.SignalBus, audit domain.AuditStore, local Broadcaster, logger *slog.Logger) *EventService {
	return &EventService{
		bus:    bus,
		audit:  audit,
		local:  local,
		now:    time.Now,
		logger: logger.With(slog.String("component", "event_service")),
	}
}

// OnScan publishes the scan report on the status channel.
func (s *EventService) OnScan(ctx context.Context, r domain.ScanReport) {
	s.publish(ctx, domain.ChannelStatus, EventScan, r)
}

// OnOpportunity publishes the opportunity.
func (s *EventService) OnOpportunity(ctx context.Context, opp domain.LiquidationOpportunity) {
	s.publish(ctx, domain.ChannelOpportunities, EventOpportunity, opp.View())
}

// OnResult publishes the outcome, appends successes to the durable stream
// and writes an audit entry for every attempt.
func (s *EventService) OnResult(ctx context.Context, opp domain.LiquidationOpportunity, res domain.ExecutionResult) {
	data := ResultData{
		Opportunity: opp.View(),
		Success:     res.Success,
		Reason:      res.Reason,
		TxHash:      res.TxHash,
		Record:      res.Record,
	}
	payload := s.publish(ctx, domain.ChannelLiquidations, EventResult, data)

	if res.Success && s.bus != nil && payload != nil {
		if err := s.bus.StreamAppend(ctx, domain.StreamLiquidations, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
		}
	}

	if s.audit != nil {
		detail := map[string]any{
			"borrower":     data.Opportunity.Borrower,
			"repay_symbol": data.Opportunity.RepaySymbol,
			"seize_symbol": data.Opportunity.SeizeSymbol,
			"repay_usd":    data.Opportunity.RepayUSD,
			"profit_usd":   data.Opportunity.ExpectedProfitUSD,
			"success":      res.Success,
		}
		if res.Reason != "" {
			detail["reason"] = res.Reason
		}
		if res.TxHash != "" {
			detail["tx_hash"] = res.TxHash
		}
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := s.audit.Log(actx, "liquidation.attempt", detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

// publish encodes an event and hands it to the bus and the local
// broadcaster. It returns the encoded payload, or nil if encoding failed.
func (s *EventService) publish(ctx context.Context, channel, typ string, data any) []byte {
	payload, err := json.Marshal(Event{Type: typ, Timestamp: s.now().UTC(), Data: data})
	if err != nil {
		s.logger.ErrorContext(ctx, "encode event failed",
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if s.local != nil {
		s.local.Broadcast(channel, payload)
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, channel, payload); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
	return payload
}
