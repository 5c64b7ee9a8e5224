// Package service orchestrates the engine with caching, distributed locking,
// event distribution, and the background maturity sweep.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/notify"
)

// Pub/sub channels and the durable stream events are distributed on.
const (
	ChannelBond     = "ch:bond"
	ChannelTreasury = "ch:treasury"
	ChannelAdmin    = "ch:admin"
	EventStream     = "stream:events"
)

// operatorEvents are forwarded to the notifier in addition to the bus.
var operatorEvents = map[string]string{
	domain.EventBondIssued:      "Bond issued",
	domain.EventBondSettled:     "Bond settled",
	domain.EventBondForceClosed: "Bond force-closed",
	domain.EventEmergencyPayout: "Emergency treasury payout",
	domain.EventPaused:          "Engine paused",
	domain.EventUnpaused:        "Engine unpaused",
	domain.EventAdminChanged:    "Admin changed",
	domain.EventTreasuryLow:     "Treasury below obligations",
}

// EventRecorder fans engine events out to the audit log, the signal bus
// (ephemeral channel plus durable stream), and the operator notifier. Event
// distribution never fails the originating operation; delivery problems are
// logged and dropped.
type EventRecorder struct {
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewEventRecorder creates an EventRecorder. bus and notifier may be nil.
func NewEventRecorder(audit domain.AuditStore, bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *EventRecorder {
	return &EventRecorder{
		audit:    audit,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "event_recorder")),
	}
}

// Record distributes one engine event.
func (r *EventRecorder) Record(ctx context.Context, ev domain.Event) {
	detail := map[string]any{
		"event_id": ev.ID,
		"bond_id":  ev.BondID,
		"actor":    ev.Actor.Hex(),
		"at":       ev.At,
	}
	for k, v := range ev.Detail {
		detail[k] = v
	}
	if err := r.audit.Log(ctx, ev.Type, detail); err != nil {
		r.logger.ErrorContext(ctx, "audit log write failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}

	if r.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.ErrorContext(ctx, "event marshal failed",
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
			return
		}
		if err := r.bus.Publish(ctx, channelFor(ev.Type), payload); err != nil {
			r.logger.WarnContext(ctx, "event publish failed",
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
		}
		if err := r.bus.StreamAppend(ctx, EventStream, payload); err != nil {
			r.logger.WarnContext(ctx, "event stream append failed",
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.notifier != nil {
		if title, ok := operatorEvents[ev.Type]; ok {
			msg := fmt.Sprintf("%s (bond %d, actor %s)", ev.Type, ev.BondID, ev.Actor.Hex())
			if err := r.notifier.Notify(ctx, ev.Type, title, msg); err != nil {
				r.logger.WarnContext(ctx, "operator notification failed",
					slog.String("event", ev.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// channelFor maps an event type to its pub/sub channel.
func channelFor(eventType string) string {
	switch eventType {
	case domain.EventEmergencyPayout, domain.EventTreasuryLow:
		return ChannelTreasury
	case domain.EventPaused, domain.EventUnpaused, domain.EventAdminChanged,
		domain.EventBackendChanged, domain.EventTreasuryChanged:
		return ChannelAdmin
	default:
		return ChannelBond
	}
}
