package domain

import (
	"context"
	"io"
	"time"
)

// ConfigStore serves the dynamic BotConfig. Implementations must tolerate
// concurrent polling; the coordinator reads on a cooldown.
type ConfigStore interface {
	// Load returns the current BotConfig.
	Load(ctx context.Context) (BotConfig, error)
	// EnsureDefault inserts cfg as the config row if none exists yet.
	EnsureDefault(ctx context.Context, cfg BotConfig) error
}

// EventStore is the append-only persistence side of the event sink.
type EventStore interface {
	Insert(ctx context.Context, ev BotEvent) error
	// ListBefore returns all events with a timestamp strictly before the
	// given cutoff, oldest first.
	ListBefore(ctx context.Context, before time.Time) ([]BotEvent, error)
	// DeleteBefore removes events older than the cutoff and reports how many
	// rows were deleted. Called only after an archive upload has succeeded.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunStore persists run records.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Finalize(ctx context.Context, id, status string, endedAt time.Time) error
}

// SignalBus fans bot events out to live consumers (the dashboard WebSocket
// hub) over pub/sub, with a durable stream alongside.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// MarketCache holds the most recent discovery result so the status server
// (and a restarted process) can read the last known market set.
type MarketCache interface {
	SetAll(ctx context.Context, markets []Market) error
	List(ctx context.Context) ([]Market, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver rolls old event rows into blob storage.
type Archiver interface {
	// ArchiveEvents uploads all events before the cutoff as JSONL, deletes
	// the archived rows, and returns the archived count.
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
