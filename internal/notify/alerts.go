package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// Alerter tails the bot event channel on the signal bus and forwards matching
// events to the notifier. It runs for the life of the process and exits when
// the context is canceled.
type Alerter struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

func NewAlerter(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Alerter {
	return &Alerter{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With("component", "alerter"),
	}
}

// Watch subscribes to the given channel and dispatches alerts until the
// context is canceled or the subscription closes.
func (a *Alerter) Watch(ctx context.Context, channel string) error {
	msgs, err := a.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("notify: subscribing to %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			a.handle(ctx, payload)
		}
	}
}

func (a *Alerter) handle(ctx context.Context, payload []byte) {
	var ev domain.BotEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		a.logger.Warn("undecodable event payload", "error", err)
		return
	}

	title, message := formatAlert(ev)
	if err := a.notifier.Notify(ctx, string(ev.Kind), title, message); err != nil {
		a.logger.Warn("alert delivery incomplete", "kind", string(ev.Kind), "error", err)
	}
}

func formatAlert(ev domain.BotEvent) (title, message string) {
	title = fmt.Sprintf("dutchbot %s [%s]", ev.Kind, ev.Mode)

	switch {
	case ev.MarketID != "" && ev.Message != "":
		message = fmt.Sprintf("%s\n%s", ev.MarketTitle, ev.Message)
	case ev.MarketID != "":
		message = fmt.Sprintf("%s (sum=%.4f, edge=%.4f, shares=%d)",
			ev.MarketTitle, ev.Sum, ev.EffectiveEdge, ev.Shares)
	default:
		message = ev.Message
	}
	return title, message
}
