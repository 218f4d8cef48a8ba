package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// ConfigStore implements domain.ConfigStore on the single-row bot_config
// table. The CHECK (id = 1) constraint keeps it single-row at the schema
// level; operators edit the row directly (or through the dashboard).
type ConfigStore struct {
	pool *pgxpool.Pool
}

var _ domain.ConfigStore = (*ConfigStore)(nil)

func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Load returns the current dynamic config. A missing row is an error; callers
// fall back to safe defaults on any failure.
func (s *ConfigStore) Load(ctx context.Context) (domain.BotConfig, error) {
	const query = `
		SELECT mode, execution_enabled, kill_switch,
			min_edge, fee_buffer, min_shares, max_fill_ms,
			max_usd_per_trade, max_open_usd_total, max_daily_loss_usd, max_trades_per_hour
		FROM bot_config WHERE id = 1`

	var cfg domain.BotConfig
	var mode string
	err := s.pool.QueryRow(ctx, query).Scan(
		&mode, &cfg.ExecutionEnabled, &cfg.KillSwitch,
		&cfg.MinEdge, &cfg.FeeBuffer, &cfg.MinShares, &cfg.MaxFillMs,
		&cfg.MaxUsdPerTrade, &cfg.MaxOpenUsdTotal, &cfg.MaxDailyLossUsd, &cfg.MaxTradesPerHour,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BotConfig{}, fmt.Errorf("postgres: load bot config: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("postgres: load bot config: %w", err)
	}

	cfg.Mode = domain.TradingMode(mode)
	if cfg.Mode != domain.ModeLive {
		cfg.Mode = domain.ModePaper
	}
	return cfg, nil
}

// EnsureDefault inserts cfg as the config row if none exists yet, so a fresh
// deployment starts with the kill switch on rather than an error loop.
func (s *ConfigStore) EnsureDefault(ctx context.Context, cfg domain.BotConfig) error {
	const query = `
		INSERT INTO bot_config (
			id, mode, execution_enabled, kill_switch,
			min_edge, fee_buffer, min_shares, max_fill_ms,
			max_usd_per_trade, max_open_usd_total, max_daily_loss_usd, max_trades_per_hour
		) VALUES (
			1, $1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		string(cfg.Mode), cfg.ExecutionEnabled, cfg.KillSwitch,
		cfg.MinEdge, cfg.FeeBuffer, cfg.MinShares, cfg.MaxFillMs,
		cfg.MaxUsdPerTrade, cfg.MaxOpenUsdTotal, cfg.MaxDailyLossUsd, cfg.MaxTradesPerHour,
	)
	if err != nil {
		return fmt.Errorf("postgres: ensure default bot config: %w", err)
	}
	return nil
}
