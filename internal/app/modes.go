package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/engine"
	"github.com/alanyoungcy/dutchbot/internal/events"
	"github.com/alanyoungcy/dutchbot/internal/notify"
	"github.com/alanyoungcy/dutchbot/internal/risk"
	"github.com/alanyoungcy/dutchbot/internal/scanner"
	"github.com/alanyoungcy/dutchbot/internal/server"
	"github.com/alanyoungcy/dutchbot/internal/server/handler"
	"github.com/alanyoungcy/dutchbot/internal/server/ws"
)

// RunMode starts the trading loop: config polling, discovery, evaluation,
// risk-gated execution, plus the status server, alerter, and archiver.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.ConfigStore.EnsureDefault(ctx, domain.SafeDefaults()); err != nil {
		a.logger.WarnContext(ctx, "seeding default trading config failed",
			slog.String("error", err.Error()),
		)
	}
	cfg, err := deps.ConfigStore.Load(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "initial config load failed; using safe defaults",
			slog.String("error", err.Error()),
		)
		cfg = domain.SafeDefaults()
	}

	run := domain.Run{
		ID:        uuid.NewString(),
		Mode:      cfg.Mode,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if deps.RunStore != nil {
		if err := deps.RunStore.Create(ctx, run); err != nil {
			a.logger.WarnContext(ctx, "run record create failed", slog.String("error", err.Error()))
		}
		defer func() {
			finCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deps.RunStore.Finalize(finCtx, run.ID, domain.RunStatusStopped, time.Now().UTC()); err != nil {
				a.logger.Warn("run record finalize failed", slog.String("error", err.Error()))
			}
		}()
	}

	a.logger.InfoContext(ctx, "starting run mode",
		slog.String("run_id", run.ID),
		slog.String("trading_mode", string(cfg.Mode)),
		slog.Bool("live_ready", deps.LiveReady),
	)

	recorder := events.NewRecorder(deps.EventStore, deps.SignalBus, run.ID, a.logger)
	guard := risk.NewGuard(a.logger)
	discovery := scanner.NewDiscovery(
		deps.Venue,
		a.cfg.Scanner.TitlePatterns,
		a.cfg.Scanner.MaxPages,
		a.cfg.Scanner.ListingTimeout.Duration,
		a.logger,
	)
	fetcher := scanner.NewFetcher(deps.Venue, a.cfg.Scanner.BookTimeout.Duration, a.logger)

	coordinator, err := engine.NewCoordinator(
		ctx,
		deps.ConfigStore,
		discovery,
		fetcher,
		guard,
		deps.Factory,
		deps.Quoter,
		recorder,
		deps.MarketCache,
		engine.Options{
			ScanInterval:       a.cfg.Engine.ScanInterval.Duration,
			ConfigRefresh:      a.cfg.Engine.ConfigRefresh.Duration,
			AllowLiveExecution: a.cfg.Engine.AllowLiveExecution,
		},
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("run mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coordinator.Run(ctx)
	})

	// Alerter: pages the operator on HALT/ERROR events.
	if deps.SignalBus != nil {
		alerter := notify.NewAlerter(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error {
			return alerter.Watch(ctx, events.Channel)
		})
	}

	// Archiver: rolls old event rows into S3 on an interval.
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps.Archiver)
		})
	}

	// Status server. It keeps serving after a halt so the operator can
	// inspect the final risk state.
	if a.cfg.Server.Enabled {
		a.startStatusServer(ctx, g, deps, run, guard)
	}

	return g.Wait()
}

// CheckMode is a read-only rehearsal: it verifies venue connectivity and
// credentials, runs one discovery pass, and prints the top-of-book sums for
// every eligible market. No orders are placed and nothing is persisted.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting check mode",
		slog.Bool("live_ready", deps.LiveReady),
		slog.Bool("postgres", deps.EventStore != nil),
		slog.Bool("redis", deps.SignalBus != nil),
	)

	cfg, err := deps.ConfigStore.Load(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "config load failed; showing safe defaults",
			slog.String("error", err.Error()),
		)
		cfg = domain.SafeDefaults()
	}
	a.logger.InfoContext(ctx, "active trading config",
		slog.String("trading_mode", string(cfg.Mode)),
		slog.Bool("kill_switch", cfg.KillSwitch),
		slog.Float64("min_edge", cfg.MinEdge),
		slog.Float64("fee_buffer", cfg.FeeBuffer),
		slog.Float64("max_usd_per_trade", cfg.MaxUsdPerTrade),
	)

	discovery := scanner.NewDiscovery(
		deps.Venue,
		a.cfg.Scanner.TitlePatterns,
		a.cfg.Scanner.MaxPages,
		a.cfg.Scanner.ListingTimeout.Duration,
		a.logger,
	)
	markets, err := discovery.DiscoverMarkets(ctx)
	if err != nil {
		return fmt.Errorf("check mode: discovery: %w", err)
	}
	a.logger.InfoContext(ctx, "discovery pass complete", slog.Int("markets", len(markets)))

	fetcher := scanner.NewFetcher(deps.Venue, a.cfg.Scanner.BookTimeout.Duration, a.logger)
	for _, m := range markets {
		book, ok := fetcher.FetchOrderbook(ctx, m)
		if !ok {
			a.logger.WarnContext(ctx, "orderbook fetch failed", slog.String("market_id", m.ID))
			continue
		}
		if book.YesBestAsk == nil || book.NoBestAsk == nil {
			a.logger.InfoContext(ctx, "one-sided book",
				slog.String("market_id", m.ID),
				slog.String("title", m.Title),
			)
			continue
		}
		sum := book.YesBestAsk.Price + book.NoBestAsk.Price
		a.logger.InfoContext(ctx, "top of book",
			slog.String("market_id", m.ID),
			slog.String("title", m.Title),
			slog.Float64("yes_ask", book.YesBestAsk.Price),
			slog.Float64("no_ask", book.NoBestAsk.Price),
			slog.Float64("sum", sum),
			slog.Float64("raw_edge", 1.0-sum),
		)
	}
	return nil
}

// runArchiver archives events older than the retention window on an interval.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			n, err := archiver.ArchiveEvents(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "event archive failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "events archived",
					slog.Int64("count", n),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// startStatusServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. The hub needs the signal bus; without Redis only the REST
// endpoints are served.
func (a *App) startStatusServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, run domain.Run, guard *risk.Guard) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, events.Channel, ws.Config{
			RunID:     run.ID,
			Mode:      run.Mode,
			StartedAt: run.StartedAt,
		}, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	status := handler.NewStatusHandler(run, guard, deps.ConfigStore, deps.MarketCache, a.logger)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, status, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
