package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// EventStore implements domain.EventStore on the append-only bot_events table.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ domain.EventStore = (*EventStore)(nil)

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventCols = `id, run_id, ts, mode, kind, market_id, market_title,
	yes_ask, no_ask, price_sum, effective_edge, shares, message, meta`

// Insert appends one event.
func (s *EventStore) Insert(ctx context.Context, ev domain.BotEvent) error {
	var meta []byte
	if len(ev.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(ev.Meta); err != nil {
			return fmt.Errorf("postgres: marshal event meta: %w", err)
		}
	}

	const query = `
		INSERT INTO bot_events (` + eventCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, nullIfEmpty(ev.RunID), ev.TS, string(ev.Mode), string(ev.Kind),
		nullIfEmpty(ev.MarketID), nullIfEmpty(ev.MarketTitle),
		ev.YesAsk, ev.NoAsk, ev.Sum, ev.EffectiveEdge, ev.Shares,
		nullIfEmpty(ev.Message), meta,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event: %w", err)
	}
	return nil
}

// ListBefore returns all events with ts strictly before the cutoff, oldest
// first, for archiving.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BotEvent, error) {
	const query = `
		SELECT ` + eventCols + `
		FROM bot_events WHERE ts < $1 ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanEventRows(rows)
}

// DeleteBefore removes archived rows and reports how many were deleted.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM bot_events WHERE ts < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanEventRows(rows pgx.Rows) ([]domain.BotEvent, error) {
	var out []domain.BotEvent
	for rows.Next() {
		var (
			ev                          domain.BotEvent
			mode, kind                  string
			runID, marketID, title, msg *string
			meta                        []byte
		)
		if err := rows.Scan(
			&ev.ID, &runID, &ev.TS, &mode, &kind, &marketID, &title,
			&ev.YesAsk, &ev.NoAsk, &ev.Sum, &ev.EffectiveEdge, &ev.Shares,
			&msg, &meta,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event row: %w", err)
		}
		ev.Mode = domain.TradingMode(mode)
		ev.Kind = domain.EventKind(kind)
		ev.RunID = deref(runID)
		ev.MarketID = deref(marketID)
		ev.MarketTitle = deref(title)
		ev.Message = deref(msg)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Meta); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event meta: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
