package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

type fakeSender struct {
	name   string
	titles []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"HALT", "ERROR"}, testLogger())

	if err := n.Notify(context.Background(), "HEARTBEAT", "hb", "ignored"); err != nil {
		t.Fatalf("filtered notify: %v", err)
	}
	if err := n.Notify(context.Background(), "HALT", "halted", "reason"); err != nil {
		t.Fatalf("allowed notify: %v", err)
	}
	if len(sender.titles) != 1 || sender.titles[0] != "halted" {
		t.Errorf("delivered = %v", sender.titles)
	}
}

func TestNotifyCollectsSenderFailures(t *testing.T) {
	good := &fakeSender{name: "good"}
	bad := &fakeSender{name: "bad", err: errors.New("webhook 500")}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), "ERROR", "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Errorf("err = %v", err)
	}
	// The healthy sender still received the alert.
	if len(good.titles) != 1 {
		t.Errorf("good sender deliveries = %d", len(good.titles))
	}
}

func TestFormatAlert(t *testing.T) {
	ev := domain.BotEvent{
		Kind:          domain.EventHalt,
		Mode:          domain.ModeLive,
		MarketID:      "m1",
		MarketTitle:   "Bitcoin Up or Down",
		Message:       "failed to flatten 80 shares",
		Sum:           0.95,
		EffectiveEdge: 0.04,
	}
	title, msg := formatAlert(ev)
	if !strings.Contains(title, "HALT") || !strings.Contains(title, "LIVE") {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(msg, "Bitcoin Up or Down") || !strings.Contains(msg, "flatten") {
		t.Errorf("message = %q", msg)
	}
}

type scriptBus struct {
	payloads [][]byte
}

func (s *scriptBus) Publish(context.Context, string, []byte) error      { return nil }
func (s *scriptBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (s *scriptBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte, len(s.payloads))
	for _, p := range s.payloads {
		ch <- p
	}
	close(ch)
	return ch, nil
}

func TestAlerterWatchDispatches(t *testing.T) {
	payload, _ := json.Marshal(domain.BotEvent{Kind: domain.EventError, Message: "boom"})
	bus := &scriptBus{payloads: [][]byte{payload, []byte("not json")}}
	sender := &fakeSender{name: "test"}
	alerter := NewAlerter(bus, NewNotifier([]Sender{sender}, []string{"ERROR"}, testLogger()), testLogger())

	// The subscription channel closes after draining, ending Watch.
	if err := alerter.Watch(context.Background(), "bot_events"); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Errorf("deliveries = %d, want 1 (bad payloads are skipped)", len(sender.titles))
	}
}
