package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

type fakeEventStore struct {
	inserted []domain.BotEvent
	err      error
}

func (f *fakeEventStore) Insert(_ context.Context, ev domain.BotEvent) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, ev)
	return nil
}

func (f *fakeEventStore) ListBefore(context.Context, time.Time) ([]domain.BotEvent, error) {
	return nil, nil
}

func (f *fakeEventStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeBus struct {
	published [][]byte
	streamed  [][]byte
	err       error
}

func (f *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.streamed = append(f.streamed, payload)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitStampsAndFansOut(t *testing.T) {
	store := &fakeEventStore{}
	bus := &fakeBus{}
	rec := NewRecorder(store, bus, "run-1", testLogger())

	rec.Emit(context.Background(), domain.BotEvent{
		Mode:        domain.ModePaper,
		Kind:        domain.EventOpportunity,
		MarketID:    "m1",
		MarketTitle: "Bitcoin Up or Down",
		Sum:         0.95,
	})

	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d events", len(store.inserted))
	}
	ev := store.inserted[0]
	if ev.ID == "" || ev.TS.IsZero() {
		t.Errorf("event not stamped: id=%q ts=%v", ev.ID, ev.TS)
	}
	if ev.RunID != "run-1" {
		t.Errorf("run id = %q", ev.RunID)
	}

	if len(bus.published) != 1 || len(bus.streamed) != 1 {
		t.Fatalf("published=%d streamed=%d", len(bus.published), len(bus.streamed))
	}
	var decoded domain.BotEvent
	if err := json.Unmarshal(bus.published[0], &decoded); err != nil {
		t.Fatalf("published payload: %v", err)
	}
	if decoded.Kind != domain.EventOpportunity || decoded.MarketID != "m1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestEmitSurvivesSinkFailures(t *testing.T) {
	rec := NewRecorder(&fakeEventStore{err: errors.New("db down")}, &fakeBus{err: errors.New("redis down")}, "run-1", testLogger())

	// Must not panic or block.
	rec.Emit(context.Background(), domain.BotEvent{Kind: domain.EventHalt, Message: "test"})
}

func TestEmitToleratesNilSinks(t *testing.T) {
	rec := NewRecorder(nil, nil, "run-1", testLogger())
	rec.Emit(context.Background(), domain.BotEvent{Kind: domain.EventHeartbeat})
}
