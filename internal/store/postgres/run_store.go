package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// RunStore implements domain.RunStore on the bot_runs table.
type RunStore struct {
	pool *pgxpool.Pool
}

var _ domain.RunStore = (*RunStore)(nil)

func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create inserts a new run record.
func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	const query = `
		INSERT INTO bot_runs (id, mode, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Mode), run.Status, run.StartedAt, run.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run: %w", err)
	}
	return nil
}

// Finalize marks a run as ended.
func (s *RunStore) Finalize(ctx context.Context, id, status string, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE bot_runs SET status = $2, ended_at = $3 WHERE id = $1",
		id, status, endedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: finalize run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finalize run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
