package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

type fakeBus struct {
	ch chan []byte
}

func (f *fakeBus) Publish(context.Context, string, []byte) error      { return nil }
func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return f.ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubRelaysEventsAsText(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte, 4)}
	hub := NewHub(bus, "bot_events", Config{
		RunID:     "run-1",
		Mode:      domain.ModePaper,
		StartedAt: time.Now().Add(-5 * time.Second),
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First frame is the status envelope.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status frame: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("status frame type = %d, want text", msgType)
	}
	var status struct {
		Type    string `json:"type"`
		Payload struct {
			RunID       string `json:"run_id"`
			Mode        string `json:"mode"`
			WSConnected bool   `json:"ws_connected"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Type != "bot_status" || status.Payload.RunID != "run-1" || !status.Payload.WSConnected {
		t.Errorf("status = %+v", status)
	}

	// A bus payload reaches the client unchanged.
	event := []byte(`{"kind":"FILLED","market_id":"m1"}`)
	bus.ch <- event

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event frame: %v", err)
	}
	if msgType != websocket.TextMessage || string(payload) != string(event) {
		t.Errorf("event frame = type %d, %s", msgType, payload)
	}
}
