package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/dutchbot/internal/blob/s3"
	"github.com/alanyoungcy/dutchbot/internal/broker"
	"github.com/alanyoungcy/dutchbot/internal/cache/redis"
	"github.com/alanyoungcy/dutchbot/internal/config"
	"github.com/alanyoungcy/dutchbot/internal/crypto"
	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/notify"
	"github.com/alanyoungcy/dutchbot/internal/platform/polymarket"
	"github.com/alanyoungcy/dutchbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
//
// Infrastructure is wired tolerantly: a missing database, Redis, or S3 backend
// degrades the bot (safe-default config, no persistence, no live feed) instead
// of stopping it, because the scan loop itself only needs the venue API.
type Dependencies struct {
	ConfigStore domain.ConfigStore
	EventStore  domain.EventStore // nil without Postgres
	RunStore    domain.RunStore   // nil without Postgres
	SignalBus   domain.SignalBus  // nil without Redis
	MarketCache domain.MarketCache
	Archiver    domain.Archiver // nil unless archiving is enabled and wired

	Venue   *polymarket.Client
	Quoter  broker.BidQuoter
	Factory broker.Factory

	Notifier *notify.Notifier

	// LiveReady reports whether a signing wallet was configured, i.e. whether
	// the live broker exists at all.
	LiveReady bool
}

// safeDefaultStore is the ConfigStore of last resort when Postgres is
// unavailable: every load returns the fail-safe defaults.
type safeDefaultStore struct{}

func (safeDefaultStore) Load(context.Context) (domain.BotConfig, error) {
	return domain.SafeDefaults(), nil
}

func (safeDefaultStore) EnsureDefault(context.Context, domain.BotConfig) error { return nil }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{ConfigStore: safeDefaultStore{}}

	// --- PostgreSQL: dynamic config, events, runs ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		logger.Warn("wire: postgres unavailable; trading limits fall back to safe defaults",
			slog.String("error", err.Error()),
		)
	} else {
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ConfigStore = postgres.NewConfigStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.RunStore = postgres.NewRunStore(pool)
	}

	// --- Redis: signal bus and discovery cache ---
	redisClient, err := redis.Dial(ctx, redis.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		logger.Warn("wire: redis unavailable; live event feed and market cache disabled",
			slog.String("error", err.Error()),
		)
	} else {
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.MarketCache = redis.NewMarketCache(redisClient)
	}

	// --- S3: event archives (only when archiving is on and events persist) ---
	if cfg.Archive.Enabled {
		if deps.EventStore == nil {
			logger.Warn("wire: archive.enabled set but postgres is unavailable; archiver disabled")
		} else {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				logger.Warn("wire: s3 unavailable; archiver disabled", slog.String("error", err.Error()))
			} else {
				deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.EventStore, logger)
			}
		}
	}

	// --- Venue client and brokers ---
	venue, liveReady, err := buildVenueClient(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Venue = venue
	deps.LiveReady = liveReady
	deps.Quoter = broker.NewVenueBidQuoter(venue)

	sim := broker.NewSimBroker(logger)
	var live *broker.LiveBroker
	if liveReady {
		live = broker.NewLiveBroker(venue, cfg.Engine.DryRun, logger)
	}
	deps.Factory = broker.NewFactory(sim, live)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildVenueClient assembles the CLOB client. Without a wallet the client can
// still list markets and fetch books (all the paper bot needs); with one it
// gains order signing, and API credentials are taken from config or derived.
func buildVenueClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*polymarket.Client, bool, error) {
	opts := []polymarket.Option{
		polymarket.WithSignatureType(cfg.Venue.SignatureType),
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
			return nil, false, fmt.Errorf("wire: loading wallet key: %w", err)
		}
		logger.Info("wire: no wallet configured; live order submission disabled")
		return polymarket.NewClient(cfg.Venue.ClobHost, cfg.Venue.ChainID, logger, opts...), false, nil
	}

	signer, err := crypto.NewSigner(keyHex, cfg.Venue.ChainID)
	if err != nil {
		return nil, false, fmt.Errorf("wire: creating signer: %w", err)
	}
	opts = append(opts, polymarket.WithSigner(signer))

	if cfg.Creds.ApiKey != "" {
		opts = append(opts, polymarket.WithHMACAuth(&crypto.HMACAuth{
			Key:        cfg.Creds.ApiKey,
			Secret:     cfg.Creds.ApiSecret,
			Passphrase: cfg.Creds.ApiPassphrase,
		}))
	}

	client := polymarket.NewClient(cfg.Venue.ClobHost, cfg.Venue.ChainID, logger, opts...)

	if cfg.Creds.ApiKey == "" {
		if _, err := client.DeriveAPIKey(ctx); err != nil {
			logger.Warn("wire: derive API key failed; live order submission may fail",
				slog.String("error", err.Error()),
			)
		}
	}
	return client, true, nil
}
