package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// ArchiveImpl implements domain.Archiver: old event rows are serialized to
// JSONL, uploaded to object storage, and only then deleted from the primary
// store. A failed upload leaves the rows in place for the next pass.
type ArchiveImpl struct {
	writer domain.BlobWriter
	events domain.EventStore
	logger *slog.Logger
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an event archiver.
func NewArchiver(writer domain.BlobWriter, events domain.EventStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		events: events,
		logger: logger.With("component", "archiver"),
	}
}

// ArchiveEvents uploads all events before the cutoff as JSONL to
// archive/events/YYYY-MM.jsonl, deletes the archived rows, and returns the
// archived count.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		// The upload succeeded; the rows will be re-archived (and the object
		// overwritten) on the next pass.
		return int64(len(events)), fmt.Errorf("s3blob: archive events delete: %w", err)
	}

	a.logger.Info("archived events", "path", path, "archived", len(events), "deleted", deleted)
	return int64(len(events)), nil
}

// archivePath builds the object key, partitioned by the cutoff's year-month.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
