// Package events provides the append-only event sink: every notable action
// of the bot is logged, persisted, and fanned out to live consumers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// Channel is the pub/sub channel and stream name events are fanned out on.
const Channel = "bot_events"

// Recorder stamps, logs, persists, and publishes bot events. Sink failures
// are logged and swallowed: observability must never stall the trading loop.
// Both the store and the bus may be nil when the corresponding backend is
// not configured.
type Recorder struct {
	store  domain.EventStore
	bus    domain.SignalBus
	logger *slog.Logger
	runID  string
}

func NewRecorder(store domain.EventStore, bus domain.SignalBus, runID string, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: logger.With("component", "events"),
		runID:  runID,
	}
}

// Emit records one event. The ID and timestamp are stamped here; callers fill
// in everything else.
func (r *Recorder) Emit(ctx context.Context, ev domain.BotEvent) {
	ev.ID = uuid.NewString()
	ev.RunID = r.runID
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}

	r.log(ev)

	if r.store != nil {
		if err := r.store.Insert(ctx, ev); err != nil {
			r.logger.Warn("event insert failed", "kind", string(ev.Kind), "error", err)
		}
	}

	if r.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.Warn("event marshal failed", "kind", string(ev.Kind), "error", err)
			return
		}
		if err := r.bus.Publish(ctx, Channel, payload); err != nil {
			r.logger.Warn("event publish failed", "kind", string(ev.Kind), "error", err)
		}
		if err := r.bus.StreamAppend(ctx, Channel, payload); err != nil {
			r.logger.Warn("event stream append failed", "kind", string(ev.Kind), "error", err)
		}
	}
}

func (r *Recorder) log(ev domain.BotEvent) {
	attrs := []any{
		"kind", string(ev.Kind),
		"mode", string(ev.Mode),
	}
	if ev.MarketID != "" {
		attrs = append(attrs, "market_id", ev.MarketID, "market_title", ev.MarketTitle)
	}
	if ev.Kind == domain.EventOpportunity || ev.Kind == domain.EventOrderSubmitted || ev.Kind == domain.EventFilled {
		attrs = append(attrs, "sum", ev.Sum, "effective_edge", ev.EffectiveEdge, "shares", ev.Shares)
	}
	if ev.Message != "" {
		attrs = append(attrs, "message", ev.Message)
	}

	// Heartbeats are frequent and boring; keep them out of info-level logs.
	if ev.Kind == domain.EventHeartbeat {
		r.logger.Debug("event", attrs...)
		return
	}
	r.logger.Info("event", attrs...)
}
