package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

type fakeWriter struct {
	paths    []string
	payloads [][]byte
	err      error
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.err != nil {
		return f.err
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	f.paths = append(f.paths, path)
	f.payloads = append(f.payloads, buf.Bytes())
	return nil
}

type fakeEvents struct {
	events  []domain.BotEvent
	deleted bool
}

func (f *fakeEvents) Insert(context.Context, domain.BotEvent) error { return nil }

func (f *fakeEvents) ListBefore(context.Context, time.Time) ([]domain.BotEvent, error) {
	return f.events, nil
}

func (f *fakeEvents) DeleteBefore(context.Context, time.Time) (int64, error) {
	f.deleted = true
	return int64(len(f.events)), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveEvents(t *testing.T) {
	events := []domain.BotEvent{
		{ID: "a", Kind: domain.EventFilled, TS: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "b", Kind: domain.EventHalt, TS: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	writer := &fakeWriter{}
	store := &fakeEvents{events: events}

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	n, err := NewArchiver(writer, store, testLogger()).ArchiveEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 2 {
		t.Errorf("archived = %d, want 2", n)
	}
	if len(writer.paths) != 1 || writer.paths[0] != "archive/events/2026-06.jsonl" {
		t.Errorf("paths = %v", writer.paths)
	}
	if lines := strings.Count(string(writer.payloads[0]), "\n"); lines != 2 {
		t.Errorf("jsonl lines = %d, want 2", lines)
	}
	if !store.deleted {
		t.Error("archived rows must be deleted after a successful upload")
	}
}

func TestArchiveEventsNothingToDo(t *testing.T) {
	writer := &fakeWriter{}
	n, err := NewArchiver(writer, &fakeEvents{}, testLogger()).ArchiveEvents(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Errorf("archive of empty set = %d, %v", n, err)
	}
	if len(writer.paths) != 0 {
		t.Error("no upload for an empty set")
	}
}

func TestArchiveEventsUploadFailureKeepsRows(t *testing.T) {
	store := &fakeEvents{events: []domain.BotEvent{{ID: "a"}}}
	writer := &fakeWriter{err: errors.New("bucket gone")}

	if _, err := NewArchiver(writer, store, testLogger()).ArchiveEvents(context.Background(), time.Now()); err == nil {
		t.Fatal("expected upload error")
	}
	if store.deleted {
		t.Error("rows must not be deleted when the upload fails")
	}
}
