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
// built-in defaults, applies LIQBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known LIQBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Market entries are only configurable from the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "LIQBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "LIQBOT_CHAIN_CHAIN_ID")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "LIQBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "LIQBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "LIQBOT_WALLET_KEY_PASSWORD")

	// ── Protocol ──
	setStr(&cfg.Protocol.Comptroller, "LIQBOT_PROTOCOL_COMPTROLLER")
	setStr(&cfg.Protocol.Oracle, "LIQBOT_PROTOCOL_ORACLE")
	setStr(&cfg.Protocol.OracleKind, "LIQBOT_PROTOCOL_ORACLE_KIND")
	setStr(&cfg.Protocol.ParamsMode, "LIQBOT_PROTOCOL_PARAMS_MODE")
	setDuration(&cfg.Protocol.ParamsRefresh, "LIQBOT_PROTOCOL_PARAMS_REFRESH")
	setFloat64(&cfg.Protocol.CloseFactor, "LIQBOT_PROTOCOL_CLOSE_FACTOR")
	setFloat64(&cfg.Protocol.LiquidationIncentive, "LIQBOT_PROTOCOL_LIQUIDATION_INCENTIVE")
	setStr(&cfg.Protocol.Pairing, "LIQBOT_PROTOCOL_PAIRING")
	setBool(&cfg.Protocol.VerifyMarkets, "LIQBOT_PROTOCOL_VERIFY_MARKETS")

	// ── Liquidation ──
	setFloat64Ptr(&cfg.Liquidation.MinProfitUSD, "LIQBOT_LIQUIDATION_MIN_PROFIT_USD")
	setFloat64Ptr(&cfg.Liquidation.MaxGasPriceGwei, "LIQBOT_LIQUIDATION_MAX_GAS_PRICE_GWEI")
	setFloat64Ptr(&cfg.Liquidation.MaxLiquidationUSD, "LIQBOT_LIQUIDATION_MAX_LIQUIDATION_USD")
	setFloat64Ptr(&cfg.Liquidation.MinCollateralUSD, "LIQBOT_LIQUIDATION_MIN_COLLATERAL_USD")

	// ── Directory ──
	setStr(&cfg.Directory.APIBase, "LIQBOT_DIRECTORY_API_BASE")
	setDuration(&cfg.Directory.Timeout, "LIQBOT_DIRECTORY_TIMEOUT")
	setStringSlice(&cfg.Directory.FallbackAddresses, "LIQBOT_DIRECTORY_FALLBACK_ADDRESSES")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.PollInterval, "LIQBOT_SCHEDULER_POLL_INTERVAL")
	setDuration(&cfg.Scheduler.Cooldown, "LIQBOT_SCHEDULER_COOLDOWN")
	setBool(&cfg.Scheduler.ScanLock, "LIQBOT_SCHEDULER_SCAN_LOCK")
	setDuration(&cfg.Scheduler.LockTTL, "LIQBOT_SCHEDULER_LOCK_TTL")

	// ── Execution ──
	setBool(&cfg.Execution.DryRun, "LIQBOT_EXECUTION_DRY_RUN")
	setUint64(&cfg.Execution.GasLimitFloor, "LIQBOT_EXECUTION_GAS_LIMIT_FLOOR")
	setInt(&cfg.Execution.GasHeadroomPct, "LIQBOT_EXECUTION_GAS_HEADROOM_PCT")
	setDuration(&cfg.Execution.ConfirmTimeout, "LIQBOT_EXECUTION_CONFIRM_TIMEOUT")
	setBool(&cfg.Execution.UnlimitedApproval, "LIQBOT_EXECUTION_UNLIMITED_APPROVAL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "LIQBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "LIQBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LIQBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LIQBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LIQBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LIQBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LIQBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LIQBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LIQBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LIQBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LIQBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LIQBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LIQBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LIQBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LIQBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LIQBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LIQBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LIQBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "LIQBOT_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LIQBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LIQBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LIQBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "LIQBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LIQBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LIQBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LIQBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LIQBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "LIQBOT_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LIQBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LIQBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "LIQBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LIQBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LIQBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LIQBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LIQBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LIQBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LIQBOT_MODE")
	setStr(&cfg.LogLevel, "LIQBOT_LOG_LEVEL")
	setStr(&cfg.LogFile, "LIQBOT_LOG_FILE")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64Ptr(dst **float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = &f
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
