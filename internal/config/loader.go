package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DUTCHBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DUTCHBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DUTCHBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DUTCHBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DUTCHBOT_WALLET_KEY_PASSWORD")

	// ── Venue ──
	setStr(&cfg.Venue.ClobHost, "DUTCHBOT_VENUE_CLOB_HOST")
	setInt(&cfg.Venue.ChainID, "DUTCHBOT_VENUE_CHAIN_ID")
	setInt(&cfg.Venue.SignatureType, "DUTCHBOT_VENUE_SIGNATURE_TYPE")

	// ── Creds ──
	setStr(&cfg.Creds.ApiKey, "DUTCHBOT_CREDS_API_KEY")
	setStr(&cfg.Creds.ApiSecret, "DUTCHBOT_CREDS_API_SECRET")
	setStr(&cfg.Creds.ApiPassphrase, "DUTCHBOT_CREDS_API_PASSPHRASE")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "DUTCHBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DUTCHBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "DUTCHBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "DUTCHBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "DUTCHBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "DUTCHBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "DUTCHBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "DUTCHBOT_SUPABASE_SSLMODE")
	setInt(&cfg.Supabase.PoolMaxConns, "DUTCHBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "DUTCHBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "DUTCHBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DUTCHBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DUTCHBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DUTCHBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DUTCHBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DUTCHBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DUTCHBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DUTCHBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DUTCHBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DUTCHBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DUTCHBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DUTCHBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DUTCHBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DUTCHBOT_S3_FORCE_PATH_STYLE")

	// ── Scanner ──
	setStringSlice(&cfg.Scanner.TitlePatterns, "DUTCHBOT_SCANNER_TITLE_PATTERNS")
	setInt(&cfg.Scanner.MaxPages, "DUTCHBOT_SCANNER_MAX_PAGES")
	setDuration(&cfg.Scanner.ListingTimeout, "DUTCHBOT_SCANNER_LISTING_TIMEOUT")
	setDuration(&cfg.Scanner.BookTimeout, "DUTCHBOT_SCANNER_BOOK_TIMEOUT")

	// ── Engine ──
	setDuration(&cfg.Engine.ScanInterval, "DUTCHBOT_ENGINE_SCAN_INTERVAL")
	setDuration(&cfg.Engine.ConfigRefresh, "DUTCHBOT_ENGINE_CONFIG_REFRESH")
	setBool(&cfg.Engine.AllowLiveExecution, "DUTCHBOT_ENGINE_ALLOW_LIVE_EXECUTION")
	setBool(&cfg.Engine.DryRun, "DUTCHBOT_ENGINE_DRY_RUN")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DUTCHBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "DUTCHBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "DUTCHBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DUTCHBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DUTCHBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DUTCHBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DUTCHBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DUTCHBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DUTCHBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DUTCHBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DUTCHBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DUTCHBOT_MODE")
	setStr(&cfg.LogLevel, "DUTCHBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
